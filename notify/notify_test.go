package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory_watch/config"
	"inventory_watch/models"
)

var fixedNow = time.Date(2026, 3, 2, 13, 5, 0, 0, time.UTC)

func entry(title, price, url string) models.LedgerEntry {
	return models.LedgerEntry{
		VehicleRecord: models.VehicleRecord{
			Title:         title,
			Price:         models.StringPtr(price),
			URL:           url,
			Dealership:    "AutoPark Honda",
			Location:      "Cary, NC",
			InventoryKind: models.InventoryNew,
		},
		ID: "url_" + title,
	}
}

func TestFormatSMS_Single(t *testing.T) {
	v := entry("2024 Honda Civic (Sport)", "$27,100", "https://a.example.com/1.htm")
	v.VIN = models.StringPtr("2HGFE2F59RH000001")

	msg := FormatSMS([]models.LedgerEntry{v}, fixedNow)
	assert.True(t, strings.HasPrefix(msg, "NEW MATCH FOUND!"))
	assert.Contains(t, msg, "Price: $27,100")
	assert.Contains(t, msg, "VIN: 2HGFE2F59RH000001")
	assert.Contains(t, msg, "View: https://a.example.com/1.htm")
	assert.Contains(t, msg, "03/02 01:05PM")
}

func TestFormatSMS_CapsVehicleList(t *testing.T) {
	vehicles := []models.LedgerEntry{
		entry("A", "$1", "https://a/1"),
		entry("B", "", "https://a/2"),
		entry("C", "$3", "https://a/3"),
		entry("D", "$4", "https://a/4"),
	}
	msg := FormatSMS(vehicles, fixedNow)
	assert.Contains(t, msg, "4 NEW MATCHES!")
	assert.Contains(t, msg, "#2 B")
	assert.NotContains(t, msg, "#3 C")
	assert.Contains(t, msg, "+ 2 more matches!")
	assert.Empty(t, FormatSMS(nil, fixedNow))
}

func TestFormatNoMatches(t *testing.T) {
	info := NoMatches{
		Criteria:    config.CriteriaConfig{Make: "Honda", Models: []string{"Civic Hybrid", "Civic"}, Trims: []string{"Sport", "Sport Touring"}, Color: "Black", BodyStyle: "Sedan", MinYear: 2016},
		SearchLinks: []string{"https://a.example.com/new-inventory/index.htm?make=Honda"},
	}
	msg := FormatNoMatches(info, fixedNow)
	assert.Contains(t, msg, "No NEW Honda Civic Hybrid/Civic vehicles")
	assert.Contains(t, msg, "- Sport/Sport Touring trim")
	assert.Contains(t, msg, "- Black Sedan")
	assert.Contains(t, msg, "- 2016 or newer")
	assert.Contains(t, msg, "Check inventory: https://a.example.com/new-inventory/index.htm?make=Honda")
}

type stubNotifier struct {
	name string
	err  error
	got  int
}

func (s *stubNotifier) Name() string { return s.name }
func (s *stubNotifier) NotifyNew(_ context.Context, v []models.LedgerEntry) error {
	s.got += len(v)
	return s.err
}
func (s *stubNotifier) NotifyNoMatches(context.Context, NoMatches) error { return s.err }

func TestMulti(t *testing.T) {
	ctx := context.Background()
	vehicles := []models.LedgerEntry{entry("A", "$1", "https://a/1")}

	err := Multi{}.NotifyNew(ctx, vehicles)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, Delivered(err))

	boom := errors.New("boom")
	ok, bad := &stubNotifier{name: "ok"}, &stubNotifier{name: "bad", err: boom}

	err = Multi{bad, ok}.NotifyNew(ctx, vehicles)
	require.Error(t, err)
	assert.True(t, Delivered(err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, ok.got)

	err = Multi{bad}.NotifyNoMatches(ctx, NoMatches{})
	assert.False(t, Delivered(err))
	var ce *ChannelError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "bad", ce.Channel)
}

func TestSMSNotifier_PostsToTwilio(t *testing.T) {
	var gotPath, gotBody, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		r.ParseForm()
		gotBody = r.PostForm.Get("Body")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer srv.Close()

	cfg := config.NotifyConfig{TwilioAccountSID: "AC1", TwilioAuthToken: "tok", TwilioFrom: "+15550001", TwilioTo: "+15550002"}
	n := NewSMSNotifier(cfg, resty.New())
	n.baseURL = srv.URL
	n.now = func() time.Time { return fixedNow }

	err := n.NotifyNew(context.Background(), []models.LedgerEntry{entry("2024 Honda Civic", "$1", "https://a/1")})
	require.NoError(t, err)
	assert.Equal(t, "/Accounts/AC1/Messages.json", gotPath)
	assert.Equal(t, "AC1", gotUser)
	assert.Contains(t, gotBody, "2024 Honda Civic")
}

func TestSMSNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}))
	defer srv.Close()

	n := NewSMSNotifier(config.NotifyConfig{TwilioAccountSID: "AC1"}, resty.New())
	n.baseURL = srv.URL
	err := n.NotifyNoMatches(context.Background(), NoMatches{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid 'To' Phone Number")
}

func TestEmailNotifier_BuildsMessage(t *testing.T) {
	var sent *email.Email
	n := NewEmailNotifier(config.NotifyConfig{EmailFrom: "watch@example.com", EmailTo: []string{"me@example.com"}})
	n.send = func(e *email.Email) error {
		sent = e
		return nil
	}

	v := entry("2024 Honda Civic <Sport>", "$27,100", "https://a.example.com/1.htm")
	require.NoError(t, n.NotifyNew(context.Background(), []models.LedgerEntry{v}))
	require.NotNil(t, sent)
	assert.Equal(t, "Inventory Watch <watch@example.com>", sent.From)
	assert.Equal(t, []string{"me@example.com"}, sent.To)
	assert.Equal(t, "New match: 2024 Honda Civic <Sport>", sent.Subject)
	assert.Contains(t, string(sent.Text), "Price: $27,100")
	assert.Contains(t, string(sent.HTML), "2024 Honda Civic &lt;Sport&gt;")
	assert.Contains(t, string(sent.HTML), "$27,100")

	sent = nil
	require.NoError(t, n.NotifyNew(context.Background(), nil))
	assert.Nil(t, sent)
}
