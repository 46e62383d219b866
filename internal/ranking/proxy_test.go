package ranking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientPutContestSendsBasicAuthAndJSON(t *testing.T) {
	var gotMethod, gotPath, gotUser, gotPass string
	var gotBody Contest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "ranker", "secret")
	err := c.PutContest(context.Background(), "c1", Contest{Name: "Finals", Begin: 1000, End: 2000})
	if err != nil {
		t.Fatalf("PutContest: %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Errorf("method = %s, want PUT", gotMethod)
	}
	if gotPath != "/contests/c1" {
		t.Errorf("path = %s, want /contests/c1", gotPath)
	}
	if gotUser != "ranker" || gotPass != "secret" {
		t.Errorf("basic auth = (%s, %s), want (ranker, secret)", gotUser, gotPass)
	}
	if gotBody.Name != "Finals" || gotBody.Begin != 1000 || gotBody.End != 2000 {
		t.Errorf("body = %+v, want Finals/1000/2000", gotBody)
	}
}

func TestClientDeleteSubmission(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "ranker", "secret")
	if err := c.DeleteSubmission(context.Background(), "s1"); err != nil {
		t.Fatalf("DeleteSubmission: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("method = %s, want DELETE", gotMethod)
	}
	if gotPath != "/submissions/s1" {
		t.Errorf("path = %s, want /submissions/s1", gotPath)
	}
}

func TestClientSurfacesNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "ranker", "wrong")
	if err := c.PutTeam(context.Background(), "t1", Team{Name: "Team A"}); err == nil {
		t.Fatalf("expected an error on a 401 response")
	}
}
