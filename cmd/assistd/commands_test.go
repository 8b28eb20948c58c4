package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		adminToken: "admin-test-token",
		httpClient: ts.server.Client(),
	}
}

func TestChatFlow(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /chatbot/session": `{"session_id":"sess-1"}`,
		"POST /chatbot/chat":    `{"response":"We are open 9 to 5.","matched":true,"source":"approved_answer"}`,
	})
	client := ts.client()

	resp, err := client.post("/chatbot/session", nil)
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}
	var created map[string]string
	if err := decodeJSON(resp, &created); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if created["session_id"] != "sess-1" {
		t.Fatalf("session_id = %q", created["session_id"])
	}

	resp, err = client.post("/chatbot/chat", map[string]string{
		"session_id": "sess-1",
		"message":    "opening hours?",
	})
	if err != nil {
		t.Fatalf("chatting: %v", err)
	}
	var reply struct {
		Response string `json:"response"`
		Matched  bool   `json:"matched"`
	}
	if err := decodeJSON(resp, &reply); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if !reply.Matched || !strings.Contains(reply.Response, "9 to 5") {
		t.Errorf("reply = %+v", reply)
	}

	// Visitor routes carry no Authorization header.
	for _, req := range ts.requests {
		if req.Auth != "" {
			t.Errorf("%s %s sent auth header %q", req.Method, req.Path, req.Auth)
		}
	}
}

func TestAdminRoutesSendBearerToken(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /admin/learning-queue": `{"items":[],"total":0}`,
	})
	client := ts.client()

	resp, err := client.adminGet("/admin/learning-queue?status=pending")
	if err != nil {
		t.Fatalf("listing queue: %v", err)
	}
	var listing map[string]any
	if err := decodeJSON(resp, &listing); err != nil {
		t.Fatalf("decoding: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(ts.requests))
	}
	if got := ts.requests[0].Auth; got != "Bearer admin-test-token" {
		t.Errorf("auth = %q, want bearer token", got)
	}
	if !strings.Contains(ts.requests[0].Path, "status=pending") {
		t.Errorf("path = %q, want status filter", ts.requests[0].Path)
	}
}

func TestAdminPutSendsBearerTokenAndBody(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PUT /admin/approved-answers/ans-1": `{"status":"updated","version":4}`,
	})
	client := ts.client()

	resp, err := client.adminPut("/admin/approved-answers/ans-1", map[string]any{
		"question_pattern": "where are you located",
		"approved_answer":  "We moved to Utrecht.",
		"is_active":        true,
	})
	if err != nil {
		t.Fatalf("updating answer: %v", err)
	}
	var result struct {
		Version int64 `json:"version"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if result.Version != 4 {
		t.Errorf("version = %d, want 4", result.Version)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(ts.requests))
	}
	req := ts.requests[0]
	if req.Method != http.MethodPut {
		t.Errorf("method = %q, want PUT", req.Method)
	}
	if req.Auth != "Bearer admin-test-token" {
		t.Errorf("auth = %q, want bearer token", req.Auth)
	}
	if !strings.Contains(req.Body, "question_pattern") {
		t.Errorf("body = %q, want the update payload", req.Body)
	}
}

func TestAdminRoutesRequireTokenConfigured(t *testing.T) {
	ts := newTestServer(t, nil)
	client := ts.client()
	client.adminToken = ""

	if _, err := client.adminGet("/admin/learning-queue"); err == nil {
		t.Fatal("adminGet succeeded without ASSISTD_ADMIN_TOKEN")
	}
	if len(ts.requests) != 0 {
		t.Errorf("request was sent despite missing token")
	}
}

func TestDecodeJSONErrorBody(t *testing.T) {
	ts := newTestServer(t, nil)
	client := ts.client()

	resp, err := client.get("/chatbot/session/missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	var v map[string]any
	err = decodeJSON(resp, &v)
	if err == nil {
		t.Fatal("decodeJSON did not surface the 404")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %v, want status in message", err)
	}
}
