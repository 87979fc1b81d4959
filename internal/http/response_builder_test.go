package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTMXResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Status(http.StatusCreated).
		BodyHTML("<p>ok</p>").
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if w.Body.String() != "<p>ok</p>" {
		t.Errorf("Body = %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Header().Get("HX-Trigger") != "" {
		t.Errorf("no triggers were added")
	}
}

func TestHTMXResponseBuilder_Triggers(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		TriggerIncomeCreated(12550, false).
		TriggerSuccessNotification("Income added successfully!", 2000).
		Write(w)

	var got map[string]map[string]any
	if err := json.Unmarshal([]byte(w.Header().Get("HX-Trigger")), &got); err != nil {
		t.Fatalf("HX-Trigger is not JSON: %v", err)
	}
	if got[EventIncomeCreated]["totalIncomeCents"] != 12550.0 {
		t.Errorf("unexpected income trigger %v", got[EventIncomeCreated])
	}
	n := got[EventNotification]
	if n["type"] != "success" || n["message"] != "Income added successfully!" || n["duration"] != 2000.0 {
		t.Errorf("unexpected notification %v", n)
	}
}

func TestHTMXResponseBuilder_Notifications(t *testing.T) {
	tests := []struct {
		name     string
		build    func(*HTMXResponseBuilder) *HTMXResponseBuilder
		wantType string
	}{
		{"error", func(b *HTMXResponseBuilder) *HTMXResponseBuilder { return b.TriggerErrorNotification("x") }, "error"},
		{"warning", func(b *HTMXResponseBuilder) *HTMXResponseBuilder { return b.TriggerWarningNotification("x") }, "warning"},
		{"info", func(b *HTMXResponseBuilder) *HTMXResponseBuilder {
			return b.TriggerNotification(NotificationInfo, "x", 3000)
		}, "info"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.build(NewHTMXResponse()).Write(w)
			if !strings.Contains(w.Header().Get("HX-Trigger"), `"type":"`+tt.wantType+`"`) {
				t.Errorf("HX-Trigger = %s", w.Header().Get("HX-Trigger"))
			}
		})
	}
}

func TestErrorResponseEscapes(t *testing.T) {
	w := httptest.NewRecorder()
	UnauthorizedError("<b>no</b>").Write(w)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Status code = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "<b>") {
		t.Errorf("message not escaped: %s", w.Body.String())
	}
}

func TestBodyJSON(t *testing.T) {
	w := httptest.NewRecorder()
	NewHTMXResponse().BodyJSON(map[string]int{"n": 1}).Write(w)
	if w.Header().Get("Content-Type") != "application/json" || w.Body.String() != `{"n":1}` {
		t.Errorf("unexpected json response %q %q", w.Header().Get("Content-Type"), w.Body.String())
	}

	w = httptest.NewRecorder()
	NewHTMXResponse().BodyJSON(func() {}).Write(w)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("unencodable values should fail, got %d", w.Code)
	}
}
