// internal/app/features/requests/handler_test.go
package requests_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bloodbridge/bloodbridge/internal/app/features/requests"
	"github.com/bloodbridge/bloodbridge/internal/app/features/shared"
	donorstore "github.com/bloodbridge/bloodbridge/internal/app/store/donors"
	quotastore "github.com/bloodbridge/bloodbridge/internal/app/store/quota"
	requeststore "github.com/bloodbridge/bloodbridge/internal/app/store/requests"
	"github.com/bloodbridge/bloodbridge/internal/app/system/dispatch"
	"github.com/bloodbridge/bloodbridge/internal/app/system/match"
	"github.com/bloodbridge/bloodbridge/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type nopNotifier struct{}

func (nopNotifier) Enqueue(dispatch.Job) {}

type nopContacts struct{}

func (nopContacts) Contact(context.Context, primitive.ObjectID) (string, string, error) {
	return "", "", fmt.Errorf("no contacts in this test")
}

type fixture struct {
	server   *httptest.Server
	requests *requeststore.Memory
	donors   *donorstore.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reqStore := requeststore.NewMemory()
	donors := donorstore.NewMemory()
	engine := match.New(reqStore, donors, quotastore.NewMemory(quotastore.DailyRequestLimit), nopContacts{}, nopNotifier{}, time.UTC, zap.NewNop())

	h := requests.NewHandler(engine, reqStore, zap.NewNop())
	srv := httptest.NewServer(requests.Routes(h))
	t.Cleanup(srv.Close)
	return &fixture{server: srv, requests: reqStore, donors: donors}
}

func (f *fixture) do(t *testing.T, method, path string, userID primitive.ObjectID, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if !userID.IsZero() {
		req.Header.Set(shared.HeaderUserID, userID.Hex())
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, out.Bytes()
}

func submitBody() map[string]any {
	return map[string]any{
		"requester_name": "City Hospital",
		"blood_type":     "O-",
		"units_needed":   2,
		"lng":            77.209,
		"lat":            28.6139,
	}
}

func TestSubmit_CreatesRoutineRequest(t *testing.T) {
	f := newFixture(t)
	requester := primitive.NewObjectID()

	resp, body := f.do(t, http.MethodPost, "/", requester, submitBody())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}

	var got models.Request
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Kind != models.KindRoutine || got.Status != models.StatusPending {
		t.Fatalf("kind/status = %s/%s", got.Kind, got.Status)
	}
	if got.RequesterID != requester {
		t.Fatalf("requester = %s, want %s", got.RequesterID.Hex(), requester.Hex())
	}
}

func TestSubmit_NormalizesBloodType(t *testing.T) {
	f := newFixture(t)
	body := submitBody()
	body["blood_type"] = "  o- "

	resp, raw := f.do(t, http.MethodPost, "/", primitive.NewObjectID(), body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, body %s", resp.StatusCode, raw)
	}
	var got models.Request
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.BloodType != models.ONegative {
		t.Fatalf("blood type = %q, want O-", got.BloodType)
	}
}

func TestSubmit_Rejections(t *testing.T) {
	f := newFixture(t)
	requester := primitive.NewObjectID()

	cases := []struct {
		name   string
		user   primitive.ObjectID
		mutate func(map[string]any)
		want   int
	}{
		{"no identity", primitive.NilObjectID, func(m map[string]any) {}, http.StatusUnauthorized},
		{"bad blood type", requester, func(m map[string]any) { m["blood_type"] = "XX" }, http.StatusBadRequest},
		{"zero units", requester, func(m map[string]any) { m["units_needed"] = 0 }, http.StatusBadRequest},
		{"bad latitude", requester, func(m map[string]any) { m["lat"] = 95.0 }, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := submitBody()
			tc.mutate(body)
			resp, raw := f.do(t, http.MethodPost, "/", tc.user, body)
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d, body %s", resp.StatusCode, tc.want, raw)
			}
		})
	}
}

func TestSubmit_DailyLimitGives429(t *testing.T) {
	f := newFixture(t)
	requester := primitive.NewObjectID()

	for i := 0; i < quotastore.DailyRequestLimit; i++ {
		resp, raw := f.do(t, http.MethodPost, "/", requester, submitBody())
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("request %d: status = %d, body %s", i+1, resp.StatusCode, raw)
		}
	}
	resp, _ := f.do(t, http.MethodPost, "/", requester, submitBody())
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("over-limit status = %d, want 429", resp.StatusCode)
	}
}

func TestSubmitEmergency_RequiresExpiry(t *testing.T) {
	f := newFixture(t)
	requester := primitive.NewObjectID()

	resp, _ := f.do(t, http.MethodPost, "/emergency", requester, submitBody())
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("no expiry status = %d, want 400", resp.StatusCode)
	}

	body := submitBody()
	body["expires_at"] = time.Now().Add(2 * time.Hour).Format(time.RFC3339)
	resp, raw := f.do(t, http.MethodPost, "/emergency", requester, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, body %s", resp.StatusCode, raw)
	}
	var got models.Request
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Kind != models.KindEmergency || got.Status != models.StatusActive {
		t.Fatalf("kind/status = %s/%s, want emergency/active", got.Kind, got.Status)
	}
}

func TestRespond_FulfillsAndConflicts(t *testing.T) {
	f := newFixture(t)
	requester := primitive.NewObjectID()

	_, raw := f.do(t, http.MethodPost, "/", requester, submitBody())
	var created models.Request
	if err := json.Unmarshal(raw, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	donorIDs := make([]primitive.ObjectID, 3)
	for i := range donorIDs {
		d := models.Donor{
			ID:        primitive.NewObjectID(),
			UserID:    primitive.NewObjectID(),
			FullName:  fmt.Sprintf("Donor%d", i),
			BloodType: models.ONegative,
			Location:  models.NewGeoPoint(77.21, 28.615),
			Available: true,
		}
		f.donors.Put(d)
		donorIDs[i] = d.ID
	}

	respond := func(donor primitive.ObjectID) (*http.Response, []byte) {
		return f.do(t, http.MethodPost, "/"+created.ID.Hex()+"/respond", donor, map[string]any{
			"donor_id": donor.Hex(),
			"status":   "donated",
		})
	}

	resp, raw := respond(donorIDs[0])
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first respond status = %d, body %s", resp.StatusCode, raw)
	}
	resp, raw = respond(donorIDs[1])
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second respond status = %d, body %s", resp.StatusCode, raw)
	}
	var after models.Request
	if err := json.Unmarshal(raw, &after); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if after.Status != models.StatusFulfilled {
		t.Fatalf("status = %q, want fulfilled", after.Status)
	}

	resp, _ = respond(donorIDs[2])
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("late respond status = %d, want 409", resp.StatusCode)
	}
}

func TestRespond_UnknownRequestGives404(t *testing.T) {
	f := newFixture(t)
	donor := models.Donor{
		ID:        primitive.NewObjectID(),
		UserID:    primitive.NewObjectID(),
		FullName:  "Asha",
		BloodType: models.ONegative,
		Location:  models.NewGeoPoint(77.21, 28.615),
		Available: true,
	}
	f.donors.Put(donor)

	resp, _ := f.do(t, http.MethodPost, "/"+primitive.NewObjectID().Hex()+"/respond", donor.UserID, map[string]any{
		"donor_id": donor.ID.Hex(),
		"status":   "donated",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestCancel_OwnershipEnforced(t *testing.T) {
	f := newFixture(t)
	owner := primitive.NewObjectID()

	_, raw := f.do(t, http.MethodPost, "/", owner, submitBody())
	var created models.Request
	if err := json.Unmarshal(raw, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	resp, _ := f.do(t, http.MethodPost, "/"+created.ID.Hex()+"/cancel", primitive.NewObjectID(), nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("stranger cancel status = %d, want 403", resp.StatusCode)
	}

	resp, raw = f.do(t, http.MethodPost, "/"+created.ID.Hex()+"/cancel", owner, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner cancel status = %d, body %s", resp.StatusCode, raw)
	}
	var got models.Request
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != models.StatusCancelled {
		t.Fatalf("status = %q, want cancelled", got.Status)
	}
}

func TestList_ScopedToRequester(t *testing.T) {
	f := newFixture(t)
	alice := primitive.NewObjectID()
	bob := primitive.NewObjectID()

	f.do(t, http.MethodPost, "/", alice, submitBody())
	f.do(t, http.MethodPost, "/", alice, submitBody())
	f.do(t, http.MethodPost, "/", bob, submitBody())

	resp, raw := f.do(t, http.MethodGet, "/", alice, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, raw)
	}
	var out struct {
		Requests []models.Request `json:"requests"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Requests) != 2 {
		t.Fatalf("alice sees %d requests, want 2", len(out.Requests))
	}
	for _, req := range out.Requests {
		if req.RequesterID != alice {
			t.Fatalf("request %s belongs to %s", req.ID.Hex(), req.RequesterID.Hex())
		}
	}
}

func TestNearby_RequiresCoordinates(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodGet, "/nearby?lat=28.6", primitive.NewObjectID(), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestNearby_ReturnsOpenRequestsByDistance(t *testing.T) {
	f := newFixture(t)
	requester := primitive.NewObjectID()

	near := submitBody()
	f.do(t, http.MethodPost, "/", requester, near)

	farther := submitBody()
	farther["lng"] = 77.25
	farther["lat"] = 28.62
	f.do(t, http.MethodPost, "/", requester, farther)

	resp, raw := f.do(t, http.MethodGet, "/nearby?lng=77.209&lat=28.6139&radius=20000", requester, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, raw)
	}
	var out struct {
		Requests []models.Request `json:"requests"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Requests) != 2 {
		t.Fatalf("nearby count = %d, want 2", len(out.Requests))
	}
	if out.Requests[0].Location.Lng() != 77.209 {
		t.Fatalf("first result is not the nearest request")
	}
}

func TestNearby_RadiusAndLimitOptional(t *testing.T) {
	f := newFixture(t)
	requester := primitive.NewObjectID()
	f.do(t, http.MethodPost, "/", requester, submitBody())

	resp, raw := f.do(t, http.MethodGet, "/nearby?lng=77.209&lat=28.6139", requester, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, raw)
	}
	var out struct {
		Requests []models.Request `json:"requests"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Requests) != 1 {
		t.Fatalf("nearby count = %d, want 1 with default radius and limit", len(out.Requests))
	}
}
