package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/yukikurage/chore-reward-api/internal/auth"
	apierrors "github.com/yukikurage/chore-reward-api/internal/errors"
	"github.com/yukikurage/chore-reward-api/internal/ledger"
	"github.com/yukikurage/chore-reward-api/internal/middleware"
	"github.com/yukikurage/chore-reward-api/internal/models"
	"github.com/yukikurage/chore-reward-api/internal/notify"
	"github.com/yukikurage/chore-reward-api/internal/repository"
	"github.com/yukikurage/chore-reward-api/internal/services"
	"github.com/yukikurage/chore-reward-api/internal/testutil"
	"gorm.io/gorm"
)

type stubLedger struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (l *stubLedger) Transfer(_ context.Context, req ledger.TransferRequest) (*ledger.TransferResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrTransferFailed, l.err)
	}
	return &ledger.TransferResult{TxHash: fmt.Sprintf("0x%s", req.Reference[:8]), Status: "CONFIRMED"}, nil
}

func (l *stubLedger) setErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

type apiTestEnv struct {
	db       *gorm.DB
	router   *gin.Engine
	verifier *auth.TokenVerifier
	ledger   *stubLedger
}

func setupAPITestEnv(t *testing.T) *apiTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	logger, _ := test.NewNullLogger()
	notifier := notify.NewLogNotifier(logger)
	stub := &stubLedger{}

	users := repository.NewUserRepository(db)
	families := repository.NewFamilyRepository(db)
	tasks := repository.NewTaskRepository(db)
	txns := repository.NewTransactionRepository(db)

	familyService := services.NewFamilyService(families, users, notifier, logger, services.InviteDefaults{})
	taskService := services.NewTaskService(tasks, families, txns, notifier, logger)
	settlementService := services.NewSettlementService(tasks, families, txns, users, stub, notifier, logger, time.Second)
	submissionService := services.NewSubmissionService(tasks, families, settlementService, notifier, logger)
	userService := services.NewUserService(users, families)
	suggestionService := services.NewSuggestionService("", families)

	verifier := auth.NewTokenVerifier("handler-test-secret")
	authenticator := auth.NewAuthenticator(users, verifier, logger)

	router := gin.New()
	router.Use(sessions.Sessions("chore_session", cookie.NewStore([]byte("session-secret"))))
	Routes{
		Auth:        NewAuthHandler(userService),
		Family:      NewFamilyHandler(familyService),
		Task:        NewTaskHandler(taskService, settlementService, suggestionService),
		Submission:  NewSubmissionHandler(submissionService),
		RequireAuth: middleware.RequireAuth(authenticator),
		JoinLimit:   middleware.NewRateLimiter(60, 10, logger).Handler(),
	}.Register(router.Group("/api"))

	return &apiTestEnv{db: db, router: router, verifier: verifier, ledger: stub}
}

func (e *apiTestEnv) tokenFor(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := e.verifier.Sign(user.LineUserID, user.DisplayName, user.Role, time.Hour)
	require.NoError(t, err)
	return token
}

// call performs a request as user (nil for anonymous) and returns the recorder.
func (e *apiTestEnv) call(t *testing.T, user *models.User, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+e.tokenFor(t, user))
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body apierrors.APIError
	decode(t, w, &body)
	return body.Code
}

type testHousehold struct {
	parent *models.User
	child  *models.User
	family *models.Family
}

func (e *apiTestEnv) household(t *testing.T, name string) testHousehold {
	t.Helper()
	parent := testutil.CreateUser(t, e.db, name+"-parent", models.RoleParent)
	child := testutil.CreateUser(t, e.db, name+"-child", models.RoleChild)
	family := testutil.CreateFamily(t, e.db, name, parent)
	testutil.AddMember(t, e.db, family, child, models.MembershipActive)
	return testHousehold{parent: parent, child: child, family: family}
}
