package npid

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"npid-bridge/lib/telemetry"

	"github.com/stretchr/testify/require"
)

// fakeDashboard stands in for the legacy server: cookie login, csrf
// tokens on html pages, 419 on stale tokens.
type fakeDashboard struct {
	mu           sync.Mutex
	currentToken string
	// attempt counters
	tokenPageHits  atomic.Int64
	stageHits      atomic.Int64
	loginPageHits  atomic.Int64
	contactsHits   atomic.Int64
	tokenPageDelay time.Duration
	// when true every POST answers 419 regardless of token
	alwaysExpired bool
	// when set, the next contacts GET serves the login page once, the
	// way a followed redirect surfaces a dead session
	contactsExpiredOnce atomic.Bool
	lastEmailForm       url.Values
}

func (f *fakeDashboard) rotateToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentToken = fmt.Sprintf("tok-%d", time.Now().UnixNano())
	return f.currentToken
}

func (f *fakeDashboard) token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentToken
}

func (f *fakeDashboard) loggedIn(r *http.Request) bool {
	cookie, err := r.Cookie("laravel_session")
	return err == nil && cookie.Value == "valid"
}

func (f *fakeDashboard) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /auth/login", func(w http.ResponseWriter, r *http.Request) {
		f.loginPageHits.Add(1)
		token := f.rotateToken()
		fmt.Fprintf(w, `<html><body><form><input type="hidden" name="_token" value="%s"></form></body></html>`, token)
	})

	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("email") != "scout@example.com" ||
			r.PostForm.Get("password") != "hunter2" ||
			r.PostForm.Get("_token") != f.token() {
			http.Redirect(w, r, "/auth/login", http.StatusFound)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     "laravel_session",
			Value:    "valid",
			Path:     "/",
			HttpOnly: true,
			Expires:  time.Now().Add(time.Hour),
		})
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	})

	mux.HandleFunc("GET /external/logincheck", func(w http.ResponseWriter, r *http.Request) {
		if f.loggedIn(r) {
			fmt.Fprint(w, `{"success":"true"}`)
			return
		}
		fmt.Fprint(w, `{"success":"false"}`)
	})

	mux.HandleFunc("GET "+tokenPagePath, func(w http.ResponseWriter, r *http.Request) {
		f.tokenPageHits.Add(1)
		if f.tokenPageDelay > 0 {
			time.Sleep(f.tokenPageDelay)
		}
		if !f.loggedIn(r) {
			http.Redirect(w, r, "/auth/login", http.StatusFound)
			return
		}
		token := f.rotateToken()
		fmt.Fprintf(w, `<html><body><form><input type="hidden" name="_token" value="%s"></form></body></html>`, token)
	})

	mux.HandleFunc("GET /template/calendaraccess/contactslist", func(w http.ResponseWriter, r *http.Request) {
		f.contactsHits.Add(1)
		if f.contactsExpiredOnce.CompareAndSwap(true, false) {
			w.Header().Set("Content-Type", "text/html; charset=UTF-8")
			fmt.Fprint(w, `<!DOCTYPE html><html><head><title>Login</title></head><body><form></form></body></html>`)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		fmt.Fprint(w, contactTableHtml)
	})

	mux.HandleFunc("POST /admin/templatedata", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if !f.loggedIn(r) || r.PostForm.Get("_token") != f.token() {
			w.WriteHeader(419)
			return
		}
		fmt.Fprintf(w, `{"sender_name":"Jane Scout","sender_email":"jane@example.com","templatesubject":"Template %s","templatedescription":"Hello."}`,
			r.PostForm.Get("tmpl"))
	})

	mux.HandleFunc("POST /admin/addnotification", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if !f.loggedIn(r) || r.PostForm.Get("_token") != f.token() {
			w.WriteHeader(419)
			return
		}
		if r.PostForm.Get("notification_subject") == "" {
			fmt.Fprint(w, `<div class="alert alert-danger">Subject required</div>`)
			return
		}
		f.mu.Lock()
		f.lastEmailForm = r.PostForm
		f.mu.Unlock()
		fmt.Fprint(w, `<div class="alert alert-success">Email Sent</div>`)
	})

	mux.HandleFunc("POST /API/scout-api/video-stage", func(w http.ResponseWriter, r *http.Request) {
		f.stageHits.Add(1)
		r.ParseForm()
		if f.alwaysExpired || !f.loggedIn(r) || r.PostForm.Get("_token") != f.token() {
			w.WriteHeader(419)
			return
		}
		if r.PostForm.Get("video_msg_id") == "bad" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprint(w, `{"message":"The given data was invalid."}`)
			return
		}
		// 200, empty body
	})

	return mux
}

func newTestClient(t *testing.T, server *httptest.Server, store CredentialStore) *Client {
	t.Helper()
	t.Cleanup(telemetry.SetupForTesting(t, "test:npid"))

	client, err := NewClient(context.Background(), ClientOptions{
		BaseUrl:  server.URL,
		Email:    "scout@example.com",
		Password: "hunter2",
		Store:    store,
	})
	require.NoError(t, err)
	return client
}

func TestInitializeLogsIn(t *testing.T) {
	dashboard := &fakeDashboard{}
	server := httptest.NewServer(dashboard.handler())
	defer server.Close()

	client := newTestClient(t, server, nil)
	err := client.Initialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateAuthenticated, client.State())
	require.False(t, client.LastRefreshed().IsZero())
}

func TestInitializeBadCredentials(t *testing.T) {
	dashboard := &fakeDashboard{}
	server := httptest.NewServer(dashboard.handler())
	defer server.Close()

	client, err := NewClient(context.Background(), ClientOptions{
		BaseUrl:  server.URL,
		Email:    "scout@example.com",
		Password: "wrong",
	})
	require.NoError(t, err)

	err = client.Initialize(context.Background())
	require.ErrorIs(t, err, ErrAuthentication)
	require.Equal(t, StateUnauthenticated, client.State())
}

func TestInitializeMissingLoginToken(t *testing.T) {
	// a login page with no _token input is an authentication failure,
	// not something to retry
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>maintenance</body></html>`)
	})
	mux.HandleFunc("GET /external/logincheck", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":"false"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t, server, nil)
	err := client.Initialize(context.Background())
	require.ErrorIs(t, err, ErrAuthentication)
}

func TestExpiredTokenRefreshedAndReplayedOnce(t *testing.T) {
	dashboard := &fakeDashboard{}
	server := httptest.NewServer(dashboard.handler())
	defer server.Close()

	client := newTestClient(t, server, nil)
	require.NoError(t, client.Initialize(context.Background()))

	// invalidate the client's token server-side
	dashboard.rotateToken()

	refreshesBefore := dashboard.tokenPageHits.Load()
	err := client.UpdateStage(context.Background(), "9231", StageDone)
	require.NoError(t, err)

	// one failed attempt, one refresh, one replay
	require.Equal(t, int64(2), dashboard.stageHits.Load())
	require.Equal(t, refreshesBefore+1, dashboard.tokenPageHits.Load())
}

func TestExpiredSessionOnHtmlEndpointRecovered(t *testing.T) {
	// a dead session on an HTML-answering endpoint arrives as the
	// login page under a 200, not as a bare redirect. it must trigger
	// the same refresh-and-replay, never parse as an empty result.
	dashboard := &fakeDashboard{}
	server := httptest.NewServer(dashboard.handler())
	defer server.Close()

	client := newTestClient(t, server, nil)
	require.NoError(t, client.Initialize(context.Background()))

	dashboard.contactsExpiredOnce.Store(true)
	refreshesBefore := dashboard.tokenPageHits.Load()

	contacts, err := client.SearchContacts(context.Background(), "Jane", "athlete")
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	require.Equal(t, "Jane Doe", contacts[0].Name)

	require.Equal(t, int64(2), dashboard.contactsHits.Load())
	require.Equal(t, refreshesBefore+1, dashboard.tokenPageHits.Load())
}

func TestPermanentExpiryGivesUpAfterOneRetry(t *testing.T) {
	dashboard := &fakeDashboard{}
	server := httptest.NewServer(dashboard.handler())
	defer server.Close()

	client := newTestClient(t, server, nil)
	require.NoError(t, client.Initialize(context.Background()))

	dashboard.alwaysExpired = true
	err := client.UpdateStage(context.Background(), "9231", StageDone)
	require.ErrorIs(t, err, ErrAuthentication)

	// exactly two physical attempts, never more
	require.Equal(t, int64(2), dashboard.stageHits.Load())
}

func TestUpstreamErrorNotRetried(t *testing.T) {
	dashboard := &fakeDashboard{}
	server := httptest.NewServer(dashboard.handler())
	defer server.Close()

	client := newTestClient(t, server, nil)
	require.NoError(t, client.Initialize(context.Background()))

	err := client.UpdateStage(context.Background(), "bad", StageDone)
	var uerr *UpstreamError
	require.ErrorAs(t, err, &uerr)
	require.Equal(t, http.StatusUnprocessableEntity, uerr.Code)
	require.Equal(t, int64(1), dashboard.stageHits.Load())
}

func TestConcurrentRefreshCollapses(t *testing.T) {
	dashboard := &fakeDashboard{tokenPageDelay: 50 * time.Millisecond}
	server := httptest.NewServer(dashboard.handler())
	defer server.Close()

	client := newTestClient(t, server, nil)
	require.NoError(t, client.Initialize(context.Background()))

	before := dashboard.tokenPageHits.Load()

	errs := make(chan error, 10)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- client.RefreshToken(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, before+1, dashboard.tokenPageHits.Load())
}

func TestRefreshSurvivesCallerCancellation(t *testing.T) {
	// a shared refresh must not die with the caller that happened to
	// start it
	dashboard := &fakeDashboard{tokenPageDelay: 100 * time.Millisecond}
	server := httptest.NewServer(dashboard.handler())
	defer server.Close()

	client := newTestClient(t, server, nil)
	require.NoError(t, client.Initialize(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	require.NoError(t, client.RefreshToken(ctx))
	require.Equal(t, StateAuthenticated, client.State())
}

type memoryStore struct {
	mu      sync.Mutex
	cookies []*http.Cookie
	saves   int
}

func (m *memoryStore) Load(ctx context.Context) ([]*http.Cookie, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cookies, nil
}

func (m *memoryStore) Save(ctx context.Context, cookies []*http.Cookie) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cookies = cookies
	m.saves++
	return nil
}

func TestSessionRestoredFromStore(t *testing.T) {
	dashboard := &fakeDashboard{}
	server := httptest.NewServer(dashboard.handler())
	defer server.Close()

	store := &memoryStore{}

	first := newTestClient(t, server, store)
	require.NoError(t, first.Initialize(context.Background()))
	require.NoError(t, first.Close(context.Background()))
	require.Equal(t, StateClosed, first.State())

	loginsAfterFirst := dashboard.loginPageHits.Load()

	// second client restores the session without touching the login
	// page
	second := newTestClient(t, server, store)
	require.NoError(t, second.Initialize(context.Background()))
	require.Equal(t, loginsAfterFirst, dashboard.loginPageHits.Load())
}

func TestCookiesNotPersistedOnFailedLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>maintenance</body></html>`)
	})
	mux.HandleFunc("GET /external/logincheck", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":"false"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	store := &memoryStore{}
	client := newTestClient(t, server, store)
	require.Error(t, client.Initialize(context.Background()))
	require.Zero(t, store.saves)
}

func TestSendTemplatedEmailUsesTemplatePrefill(t *testing.T) {
	dashboard := &fakeDashboard{}
	server := httptest.NewServer(dashboard.handler())
	defer server.Close()

	client := newTestClient(t, server, nil)
	require.NoError(t, client.Initialize(context.Background()))

	err := client.SendTemplatedEmail(context.Background(), SendEmailRequest{
		AthleteID:  "863999",
		TemplateID: "42",
	})
	require.NoError(t, err)

	dashboard.mu.Lock()
	form := dashboard.lastEmailForm
	dashboard.mu.Unlock()
	require.Equal(t, "863999", form.Get("notification_to_id"))
	require.Equal(t, "Jane Scout", form.Get("notification_from"))
	require.Equal(t, "Template 42", form.Get("notification_subject"))
	require.Equal(t, "Hello.", form.Get("notification_message"))
}

func TestSendTemplatedEmailSubjectOverride(t *testing.T) {
	dashboard := &fakeDashboard{}
	server := httptest.NewServer(dashboard.handler())
	defer server.Close()

	client := newTestClient(t, server, nil)
	require.NoError(t, client.Initialize(context.Background()))

	err := client.SendTemplatedEmail(context.Background(), SendEmailRequest{
		AthleteID:  "863999",
		TemplateID: "42",
		Subject:    "Revised cut",
	})
	require.NoError(t, err)

	dashboard.mu.Lock()
	form := dashboard.lastEmailForm
	dashboard.mu.Unlock()
	require.Equal(t, "Revised cut", form.Get("notification_subject"))
}

func TestClosedClientRefusesWork(t *testing.T) {
	dashboard := &fakeDashboard{}
	server := httptest.NewServer(dashboard.handler())
	defer server.Close()

	client := newTestClient(t, server, nil)
	require.NoError(t, client.Initialize(context.Background()))
	require.NoError(t, client.Close(context.Background()))

	err := client.UpdateStage(context.Background(), "9231", StageDone)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, client.RefreshToken(context.Background()), ErrClosed)
	// closing twice is fine
	require.NoError(t, client.Close(context.Background()))
}
