package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"entrate/internal/core"
)

func TestRequestBodyParser(t *testing.T) {
	tests := []struct {
		name        string
		target      string
		contentType string
		body        string
		wantJSON    bool
		want        core.IncomeForm
	}{
		{
			name:        "form",
			target:      "/incomes",
			contentType: "application/x-www-form-urlencoded",
			body:        "incomeDescription=+Salary+&incomeAmount=25.50&category=salary&date=2024-03-15",
			want:        core.IncomeForm{Description: "Salary", Amount: "25.50", Category: "salary", Date: "2024-03-15"},
		},
		{
			name:        "json with number amount",
			target:      "/incomes",
			contentType: "application/json",
			body:        `{"incomeDescription":"Rent","incomeAmount":100.5,"category":"rental income","date":"2024-02-01"}`,
			wantJSON:    true,
			want:        core.IncomeForm{Description: "Rent", Amount: "100.5", Category: "rental income", Date: "2024-02-01"},
		},
		{
			name:   "query merged with body",
			target: "/incomes/validate?field=incomeAmount",
			body:   "incomeAmount=3",
			want:   core.IncomeForm{Amount: "3"},
		},
		{
			name:        "control characters stripped",
			target:      "/incomes",
			contentType: "application/x-www-form-urlencoded",
			body:        "incomeDescription=a%00b%07c",
			want:        core.IncomeForm{Description: "abc"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.target, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			p := NewRequestBodyParser(req)
			if err := p.Parse(); err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if p.IsJSON() != tt.wantJSON {
				t.Errorf("IsJSON() = %v", p.IsJSON())
			}
			if got := p.IncomeForm(); got != tt.want {
				t.Errorf("IncomeForm() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRequestBodyParserErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"broken json", `{"incomeAmount":`},
		{"too large", "incomeDescription=" + strings.Repeat("a", maxBodyBytes+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/incomes", strings.NewReader(tt.body))
			p := NewRequestBodyParser(req)
			if err := p.Parse(); err == nil {
				t.Fatal("expected an error")
			}
			if err := p.Parse(); err == nil {
				t.Fatal("Parse should keep returning the first error")
			}
		})
	}
}

func TestWantsJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", "application/json")
	if !wantsJSON(req, nil) {
		t.Error("Accept: application/json should select json")
	}
	req.Header.Set("HX-Request", "true")
	if wantsJSON(req, nil) {
		t.Error("htmx requests always get html")
	}
}
