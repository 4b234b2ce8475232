package fuseki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type turtleFunc func(w io.Writer) error

func (f turtleFunc) WriteTurtle(w io.Writer) error { return f(w) }

func TestExport_ClearsThenUploads(t *testing.T) {
	var calls []string
	var uploaded string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
		if r.Method == http.MethodPost {
			if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/turtle") {
				t.Errorf("Content-Type = %q, want text/turtle", ct)
			}
			b, _ := io.ReadAll(r.Body)
			uploaded = string(b)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	g := turtleFunc(func(w io.Writer) error {
		_, err := io.WriteString(w, "<a> <b> <c> .\n")
		return err
	})
	if err := c.Export(context.Background(), g, true); err != nil {
		t.Fatalf("Export: %v", err)
	}

	want := []string{"DELETE /lms-tools/data?default", "POST /lms-tools/data?"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, calls[i], want[i])
		}
	}
	if uploaded != "<a> <b> <c> .\n" {
		t.Errorf("uploaded = %q", uploaded)
	}
}

func TestExport_SerializationErrorAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	boom := errors.New("boom")
	g := turtleFunc(func(io.Writer) error { return boom })
	if err := New(srv.URL, "x").Export(context.Background(), g, false); err == nil {
		t.Fatal("expected error when serialization fails")
	}
}

func TestClear_NotFoundIsOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if err := New(srv.URL, "x").Clear(context.Background()); err != nil {
		t.Fatalf("Clear: %v", err)
	}
}

func TestUpload_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "parse error", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := New(srv.URL, "x").Upload(context.Background(), bytes.NewBufferString("bad"))
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.Code != http.StatusBadRequest || se.Body != "parse error" {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestQuery_DecodesBindings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lms-tools/query" {
			http.NotFound(w, r)
			return
		}
		if accept := r.Header.Get("Accept"); accept != "application/sparql-results+json" {
			t.Errorf("Accept = %q", accept)
		}
		r.ParseForm()
		if !strings.Contains(r.Form.Get("query"), "owl:Class") {
			t.Errorf("query = %q", r.Form.Get("query"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"head": map[string]any{"vars": []string{"num_classes"}},
			"results": map[string]any{"bindings": []map[string]any{
				{"num_classes": map[string]string{
					"type":     "literal",
					"value":    "8",
					"datatype": "http://www.w3.org/2001/XMLSchema#integer",
				}},
			}},
		})
	}))
	defer srv.Close()

	res, err := New(srv.URL, "").Query(context.Background(), SchemaStatsQuery)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Head.Vars) != 1 || res.Head.Vars[0] != "num_classes" {
		t.Errorf("vars = %v", res.Head.Vars)
	}
	rows := res.Rows()
	if len(rows) != 1 || rows[0]["num_classes"] != "8" {
		t.Errorf("rows = %v", rows)
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/$/ping" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	if err := New(srv.URL, "").Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
