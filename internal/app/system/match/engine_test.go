// internal/app/system/match/engine_test.go
package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	donorstore "github.com/bloodbridge/bloodbridge/internal/app/store/donors"
	notificationstore "github.com/bloodbridge/bloodbridge/internal/app/store/notifications"
	quotastore "github.com/bloodbridge/bloodbridge/internal/app/store/quota"
	requeststore "github.com/bloodbridge/bloodbridge/internal/app/store/requests"
	"github.com/bloodbridge/bloodbridge/internal/app/system/dispatch"
	"github.com/bloodbridge/bloodbridge/internal/app/system/mailer"
	"github.com/bloodbridge/bloodbridge/internal/app/system/realtime"
	"github.com/bloodbridge/bloodbridge/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// recordingSender collects sent emails and optionally blocks each Send until
// released, for asserting that callers do not wait on delivery.
type recordingSender struct {
	mu      sync.Mutex
	sent    []mailer.Email
	release chan struct{} // nil means never block
}

func (s *recordingSender) Send(e mailer.Email) error {
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, e)
	return nil
}

func (s *recordingSender) emails() []mailer.Email {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mailer.Email, len(s.sent))
	copy(out, s.sent)
	return out
}

type staticContacts struct {
	names  map[primitive.ObjectID]string
	emails map[primitive.ObjectID]string
}

func (c *staticContacts) Contact(_ context.Context, id primitive.ObjectID) (string, string, error) {
	email, ok := c.emails[id]
	if !ok {
		return "", "", errors.New("no such user")
	}
	return c.names[id], email, nil
}

type testEnv struct {
	engine   *Engine
	requests *requeststore.Memory
	donors   *donorstore.Memory
	hub      *realtime.MemoryHub
	sender   *recordingSender
	contacts *staticContacts
	disp     *dispatch.Dispatcher
}

func newTestEnv(t *testing.T, sender *recordingSender) *testEnv {
	t.Helper()
	requests := requeststore.NewMemory()
	donors := donorstore.NewMemory()
	quota := quotastore.NewMemory(quotastore.DailyRequestLimit)
	receipts := notificationstore.NewMemory()
	hub := realtime.NewMemoryHub()

	disp := dispatch.New(sender, hub, receipts, zap.NewNop(), dispatch.WithBackoffBase(time.Millisecond))
	disp.Start()
	t.Cleanup(disp.Stop)

	contacts := &staticContacts{
		names:  map[primitive.ObjectID]string{},
		emails: map[primitive.ObjectID]string{},
	}
	engine := New(requests, donors, quota, contacts, disp, time.UTC, zap.NewNop())
	return &testEnv{
		engine:   engine,
		requests: requests,
		donors:   donors,
		hub:      hub,
		sender:   sender,
		contacts: contacts,
		disp:     disp,
	}
}

func seedDonor(env *testEnv, name string, bloodType models.BloodType, lng, lat float64, available bool) models.Donor {
	d := models.Donor{
		ID:        primitive.NewObjectID(),
		UserID:    primitive.NewObjectID(),
		FullName:  name,
		Email:     strings.ToLower(name) + "@example.com",
		BloodType: bloodType,
		Location:  models.NewGeoPoint(lng, lat),
		Available: available,
	}
	env.donors.Put(d)
	return d
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func routineDraft(requester primitive.ObjectID) RequestDraft {
	return RequestDraft{
		Kind:          models.KindRoutine,
		RequesterID:   requester,
		RequesterName: "City Hospital",
		BloodType:     models.ONegative,
		UnitsNeeded:   2,
		Lng:           77.209,
		Lat:           28.6139,
	}
}

func TestSubmitRequest_Validation(t *testing.T) {
	env := newTestEnv(t, &recordingSender{})
	requester := primitive.NewObjectID()
	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)

	cases := []struct {
		name  string
		draft RequestDraft
	}{
		{"missing requester", func() RequestDraft {
			d := routineDraft(primitive.NilObjectID)
			return d
		}()},
		{"unknown blood type", func() RequestDraft {
			d := routineDraft(requester)
			d.BloodType = "Q+"
			return d
		}()},
		{"zero units", func() RequestDraft {
			d := routineDraft(requester)
			d.UnitsNeeded = 0
			return d
		}()},
		{"latitude out of range", func() RequestDraft {
			d := routineDraft(requester)
			d.Lat = 91
			return d
		}()},
		{"emergency without expiry", func() RequestDraft {
			d := routineDraft(requester)
			d.Kind = models.KindEmergency
			return d
		}()},
		{"emergency expiry in the past", func() RequestDraft {
			d := routineDraft(requester)
			d.Kind = models.KindEmergency
			d.ExpiresAt = &past
			return d
		}()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.engine.SubmitRequest(context.Background(), tc.draft)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
		})
	}

	// Sanity: the same draft with a valid expiry goes through.
	d := routineDraft(requester)
	d.Kind = models.KindEmergency
	d.ExpiresAt = &future
	if _, err := env.engine.SubmitRequest(context.Background(), d); err != nil {
		t.Fatalf("valid emergency draft rejected: %v", err)
	}
}

func TestSubmitRequest_DailyLimit(t *testing.T) {
	env := newTestEnv(t, &recordingSender{})
	requester := primitive.NewObjectID()
	ctx := context.Background()

	for i := 0; i < quotastore.DailyRequestLimit; i++ {
		if _, err := env.engine.SubmitRequest(ctx, routineDraft(requester)); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if _, err := env.engine.SubmitRequest(ctx, routineDraft(requester)); !errors.Is(err, quotastore.ErrLimitExceeded) {
		t.Fatalf("over-limit err = %v, want ErrLimitExceeded", err)
	}

	// Emergencies are exempt from the daily limit.
	exp := time.Now().Add(time.Hour)
	d := routineDraft(requester)
	d.Kind = models.KindEmergency
	d.ExpiresAt = &exp
	if _, err := env.engine.SubmitRequest(ctx, d); err != nil {
		t.Fatalf("emergency blocked by daily limit: %v", err)
	}

	// Another requester is unaffected.
	if _, err := env.engine.SubmitRequest(ctx, routineDraft(primitive.NewObjectID())); err != nil {
		t.Fatalf("second requester blocked: %v", err)
	}
}

func TestSubmitRequest_ReturnsBeforeDispatch(t *testing.T) {
	sender := &recordingSender{release: make(chan struct{})}
	env := newTestEnv(t, sender)
	seedDonor(env, "Asha", models.ONegative, 77.21, 28.615, true)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := env.engine.SubmitRequest(context.Background(), routineDraft(primitive.NewObjectID())); err != nil {
			t.Errorf("SubmitRequest: %v", err)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SubmitRequest blocked on notification delivery")
	}

	close(sender.release)
	if !waitFor(t, 2*time.Second, func() bool { return len(sender.emails()) == 1 }) {
		t.Fatalf("emails sent = %d, want 1", len(sender.emails()))
	}
}

func TestSubmitRequest_FanOut(t *testing.T) {
	env := newTestEnv(t, &recordingSender{})
	near := seedDonor(env, "Asha", models.ONegative, 77.21, 28.615, true)
	far := seedDonor(env, "Bela", models.ONegative, 77.25, 28.62, true)
	seedDonor(env, "Chand", models.APositive, 77.21, 28.615, true)  // wrong type
	seedDonor(env, "Dev", models.ONegative, 77.21, 28.615, false)   // unavailable
	seedDonor(env, "Esha", models.ONegative, 78.5, 29.5, true)      // out of radius

	req, err := env.engine.SubmitRequest(context.Background(), routineDraft(primitive.NewObjectID()))
	if err != nil {
		t.Fatalf("SubmitRequest: %v", err)
	}
	if req.Status != models.StatusPending {
		t.Fatalf("status = %q, want %q", req.Status, models.StatusPending)
	}

	if !waitFor(t, 2*time.Second, func() bool { return len(env.sender.emails()) == 2 }) {
		t.Fatalf("emails sent = %d, want 2", len(env.sender.emails()))
	}
	recipients := map[string]bool{}
	for _, e := range env.sender.emails() {
		recipients[e.To] = true
		if !strings.Contains(e.Subject, "O-") {
			t.Errorf("subject %q does not name the blood type", e.Subject)
		}
	}
	if !recipients[near.Email] || !recipients[far.Email] {
		t.Fatalf("recipients = %v, want %s and %s", recipients, near.Email, far.Email)
	}

	// Each matched donor gets a user-topic push and the blood-type topic gets
	// exactly one.
	if got := len(env.hub.Messages(realtime.UserTopic(near.UserID))); got != 1 {
		t.Errorf("near donor pushes = %d, want 1", got)
	}
	btMsgs := env.hub.Messages(realtime.BloodTypeTopic(string(models.ONegative)))
	if len(btMsgs) != 1 {
		t.Fatalf("blood-type topic pushes = %d, want 1", len(btMsgs))
	}
	var payload struct {
		Type      string `json:"type"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(btMsgs[0], &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.Type != "new_request" || payload.RequestID != req.ID.Hex() {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestRespondToRequest_FulfillmentFlow(t *testing.T) {
	env := newTestEnv(t, &recordingSender{})
	requester := primitive.NewObjectID()
	env.contacts.names[requester] = "City Hospital"
	env.contacts.emails[requester] = "ward@cityhospital.example"

	donors := make([]models.Donor, 3)
	for i := range donors {
		donors[i] = seedDonor(env, fmt.Sprintf("Donor%d", i), models.ONegative, 77.21, 28.615, true)
	}

	req, err := env.engine.SubmitRequest(context.Background(), routineDraft(requester))
	if err != nil {
		t.Fatalf("SubmitRequest: %v", err)
	}
	ctx := context.Background()

	got, err := env.engine.RespondToRequest(ctx, req.ID, donors[0].ID, models.ResponseDonated)
	if err != nil {
		t.Fatalf("first donation: %v", err)
	}
	if got.Status != models.StatusPartiallyFulfilled {
		t.Fatalf("after 1/2 units status = %q, want %q", got.Status, models.StatusPartiallyFulfilled)
	}

	got, err = env.engine.RespondToRequest(ctx, req.ID, donors[1].ID, models.ResponseDonated)
	if err != nil {
		t.Fatalf("second donation: %v", err)
	}
	if got.Status != models.StatusFulfilled {
		t.Fatalf("after 2/2 units status = %q, want %q", got.Status, models.StatusFulfilled)
	}

	// Third donor arrives after fulfillment and is turned away.
	if _, err := env.engine.RespondToRequest(ctx, req.ID, donors[2].ID, models.ResponseDonated); !errors.Is(err, models.ErrRequestClosed) {
		t.Fatalf("late donation err = %v, want ErrRequestClosed", err)
	}

	// The requester gets the one-time fulfilled notification.
	ok := waitFor(t, 2*time.Second, func() bool {
		for _, e := range env.sender.emails() {
			if e.To == "ward@cityhospital.example" {
				return true
			}
		}
		return false
	})
	if !ok {
		t.Fatal("no fulfilled notification sent to the requester")
	}
	if got := len(env.hub.Messages(realtime.UserTopic(requester))); got != 1 {
		t.Errorf("requester pushes = %d, want 1", got)
	}
}

func TestRespondToRequest_UnknownDonor(t *testing.T) {
	env := newTestEnv(t, &recordingSender{})
	req, err := env.engine.SubmitRequest(context.Background(), routineDraft(primitive.NewObjectID()))
	if err != nil {
		t.Fatalf("SubmitRequest: %v", err)
	}
	_, err = env.engine.RespondToRequest(context.Background(), req.ID, primitive.NewObjectID(), models.ResponseDonated)
	if !errors.Is(err, donorstore.ErrNotFound) {
		t.Fatalf("err = %v, want donorstore.ErrNotFound", err)
	}
}

func TestRespondToRequest_BadVocabulary(t *testing.T) {
	env := newTestEnv(t, &recordingSender{})
	donor := seedDonor(env, "Asha", models.ONegative, 77.21, 28.615, true)

	req, err := env.engine.SubmitRequest(context.Background(), routineDraft(primitive.NewObjectID()))
	if err != nil {
		t.Fatalf("SubmitRequest: %v", err)
	}
	// "arrived" belongs to the emergency vocabulary only.
	_, err = env.engine.RespondToRequest(context.Background(), req.ID, donor.ID, models.ResponseArrived)
	if !errors.Is(err, models.ErrBadResponseStatus) {
		t.Fatalf("err = %v, want ErrBadResponseStatus", err)
	}
}

func TestCancelRequest_Ownership(t *testing.T) {
	env := newTestEnv(t, &recordingSender{})
	owner := primitive.NewObjectID()
	stranger := primitive.NewObjectID()
	ctx := context.Background()

	req, err := env.engine.SubmitRequest(ctx, routineDraft(owner))
	if err != nil {
		t.Fatalf("SubmitRequest: %v", err)
	}

	if _, err := env.engine.CancelRequest(ctx, req.ID, stranger, false); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("stranger cancel err = %v, want ErrNotOwner", err)
	}

	got, err := env.engine.CancelRequest(ctx, req.ID, owner, false)
	if err != nil {
		t.Fatalf("owner cancel: %v", err)
	}
	if got.Status != models.StatusCancelled {
		t.Fatalf("status = %q, want %q", got.Status, models.StatusCancelled)
	}

	// Admins can cancel requests they do not own.
	req2, err := env.engine.SubmitRequest(ctx, routineDraft(owner))
	if err != nil {
		t.Fatalf("SubmitRequest: %v", err)
	}
	if _, err := env.engine.CancelRequest(ctx, req2.ID, stranger, true); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
}

func TestFindEligible_Validation(t *testing.T) {
	env := newTestEnv(t, &recordingSender{})
	if _, err := env.engine.FindEligible(context.Background(), 200, 28, 0, models.ONegative, true, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad longitude err = %v, want ErrValidation", err)
	}
	if _, err := env.engine.FindEligible(context.Background(), 77.2, 28.6, 0, "Q+", true, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad blood type err = %v, want ErrValidation", err)
	}
}
