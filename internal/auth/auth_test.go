package auth

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iurnickita/artcares/internal/auth/config"
	"github.com/iurnickita/artcares/internal/model"
	"github.com/iurnickita/artcares/internal/store"
)

type memStore struct {
	mu     sync.Mutex
	users  map[string]model.User
	hashes map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{users: map[string]model.User{}, hashes: map[string][]byte{}}
}

func (s *memStore) AuthRegister(_ context.Context, user model.User, passwordHash []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Login]; ok {
		return "", store.ErrAlreadyExists
	}
	user.Code = strconv.Itoa(len(s.users) + 1)
	s.users[user.Login] = user
	s.hashes[user.Login] = passwordHash
	return user.Code, nil
}

func (s *memStore) AuthLogin(_ context.Context, login string) (model.User, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[login]
	if !ok {
		return model.User{}, nil, store.ErrNoRows
	}
	return user, s.hashes[login], nil
}

func newTestAuth() Auth {
	return NewAuth(config.Config{TokenSecret: "secret", TokenExp: time.Hour}, newMemStore())
}

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body)))
	return w
}

func TestRegisterLoginMiddleware(t *testing.T) {
	a := newTestAuth()

	w := post(a.Register, `{"login":"painter","password":"pw","email":"painter@example.com","role":"artist"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, http.StatusConflict,
		post(a.Register, `{"login":"painter","password":"pw","email":"painter@example.com"}`).Code)

	require.Equal(t, http.StatusUnauthorized, post(a.Login, `{"login":"painter","password":"wrong"}`).Code)
	require.Equal(t, http.StatusUnauthorized, post(a.Login, `{"login":"nobody","password":"pw"}`).Code)

	w = post(a.Login, `{"login":"painter","password":"pw"}`)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)

	var actor Actor
	protected := a.Middleware(func(w http.ResponseWriter, r *http.Request) {
		actor = ActorFromRequest(r)
	})

	// без куки
	w = httptest.NewRecorder()
	protected(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// подделанный заголовок перетирается
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookies[0])
	r.Header.Set(HeaderUserRoleKey, string(model.RoleAdmin))
	w = httptest.NewRecorder()
	protected(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, Actor{Code: "1", Role: model.RoleArtist}, actor)
}

func TestRegisterRejectsAdmin(t *testing.T) {
	a := newTestAuth()
	require.Equal(t, http.StatusBadRequest,
		post(a.Register, `{"login":"root","password":"pw","email":"root@example.com","role":"admin"}`).Code)
	require.Equal(t, http.StatusBadRequest, post(a.Register, `{"login":"root"}`).Code)
}

func TestActorFromRequestGuest(t *testing.T) {
	actor := ActorFromRequest(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, model.RoleGuest, actor.Role)
}
