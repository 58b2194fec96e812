package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/fintrack-app/fintrack/backend/internal/errors"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	client := NewClient(ClientConfig{Endpoint: srv.URL, APIKey: "test-key"})
	return client, srv
}

func TestInvoke(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(Result{ID: "srv-1"})
	})
	defer srv.Close()

	result, err := client.Invoke(context.Background(), ProcCreateTransaction,
		map[string]interface{}{"amount": -500})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result.ID != "srv-1" {
		t.Errorf("ID = %q, want srv-1", result.ID)
	}
	if gotPath != "/rpc/create_transaction" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotBody["amount"] != float64(-500) {
		t.Errorf("body = %v", gotBody)
	}
}

func TestInsertAndUpdate(t *testing.T) {
	var gotMethod, gotPath string
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(Result{ID: "srv-2"})
	})
	defer srv.Close()
	ctx := context.Background()

	result, err := client.Insert(ctx, TableAccounts, Record{"name": "Checking"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if result.ID != "srv-2" {
		t.Errorf("ID = %q", result.ID)
	}
	if gotMethod != http.MethodPost || gotPath != "/tables/accounts" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}

	if err := client.Update(ctx, TableAccounts, "srv-2", Record{"name": "Joint"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if gotMethod != http.MethodPatch || gotPath != "/tables/accounts/srv-2" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
}

func TestStatusCodeMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   apperrors.ErrorCode
	}{
		{"not found", http.StatusNotFound, apperrors.ErrNotFound},
		{"conflict", http.StatusConflict, apperrors.ErrDuplicateName},
		{"bad request", http.StatusBadRequest, apperrors.ErrRemoteRejected},
		{"unprocessable", http.StatusUnprocessableEntity, apperrors.ErrRemoteRejected},
		{"server error", http.StatusInternalServerError, apperrors.ErrRemoteUnavailable},
		{"bad gateway", http.StatusBadGateway, apperrors.ErrRemoteUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})
			defer srv.Close()

			_, err := client.Get(context.Background(), TableTransactions, "t1")
			if !apperrors.Is(err, tt.want) {
				t.Errorf("status %d: err = %v, want %s", tt.status, err, tt.want)
			}
		})
	}
}

func TestNetworkFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := NewClient(ClientConfig{Endpoint: srv.URL})
	srv.Close()

	_, err := client.Get(context.Background(), TableTransactions, "t1")
	if !apperrors.Is(err, apperrors.ErrRemoteUnavailable) {
		t.Errorf("err = %v, want REMOTE_UNAVAILABLE", err)
	}
}

func TestFetchPageParams(t *testing.T) {
	var gotQuery map[string]string
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		json.NewEncoder(w).Encode([]Record{{"id": "srv-t1"}})
	})
	defer srv.Close()

	recs, err := client.FetchPage(context.Background(), PageRequest{
		Table:     TableTransactions,
		OwnerID:   "u1",
		Since:     1690000000,
		FixedOnly: true,
		Limit:     500,
		Offset:    1000,
	})
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if len(recs) != 1 || recs[0]["id"] != "srv-t1" {
		t.Errorf("records = %v", recs)
	}

	want := map[string]string{
		"owner_id": "u1",
		"limit":    "500",
		"offset":   "1000",
		"since":    "1690000000",
		"fixed":    "true",
	}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query %s = %q, want %q", k, gotQuery[k], v)
		}
	}
}

func TestQueryByName(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") == "Checking" {
			json.NewEncoder(w).Encode([]Record{{"id": "a1", "name": "Checking"}})
			return
		}
		json.NewEncoder(w).Encode([]Record{})
	})
	defer srv.Close()
	ctx := context.Background()

	recs, err := client.QueryByName(ctx, TableAccounts, "u1", "Checking")
	if err != nil {
		t.Fatalf("QueryByName failed: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("got %d records, want 1", len(recs))
	}

	recs, err = client.QueryByName(ctx, TableAccounts, "u1", "Savings")
	if err != nil {
		t.Fatalf("QueryByName failed: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("got %d records, want 0", len(recs))
	}
}

func TestToRecordRoundTrip(t *testing.T) {
	type row struct {
		ID     string `json:"id"`
		Amount int64  `json:"amount"`
	}
	rec, err := ToRecord(row{ID: "t1", Amount: -500})
	if err != nil {
		t.Fatalf("ToRecord failed: %v", err)
	}
	if rec["id"] != "t1" {
		t.Errorf("rec = %v", rec)
	}

	var out row
	if err := FromRecord(rec, &out); err != nil {
		t.Fatalf("FromRecord failed: %v", err)
	}
	if out.Amount != -500 {
		t.Errorf("Amount = %d", out.Amount)
	}
}
