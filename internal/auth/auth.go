package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/iurnickita/artcares/internal/auth/config"
	"github.com/iurnickita/artcares/internal/model"
	"github.com/iurnickita/artcares/internal/store"
	"github.com/iurnickita/artcares/internal/token"
)

type Auth interface {
	Register(w http.ResponseWriter, r *http.Request)
	Login(w http.ResponseWriter, r *http.Request)
	Middleware(h http.HandlerFunc) http.HandlerFunc
}

// Store - учётные записи
type Store interface {
	AuthRegister(ctx context.Context, user model.User, passwordHash []byte) (string, error)
	AuthLogin(ctx context.Context, login string) (model.User, []byte, error)
}

const (
	HeaderUserCodeKey = "X-User-Code"
	HeaderUserRoleKey = "X-User-Role"
	cookieUserToken   = "artcaresUserToken"
)

var ErrWrongCredentials = errors.New("wrong login or password")

type auth struct {
	store  Store
	issuer *token.Issuer
}

func NewAuth(cfg config.Config, store Store) Auth {
	return &auth{
		store:  store,
		issuer: token.NewIssuer(cfg.TokenSecret, cfg.TokenExp),
	}
}

type RegisterJSONRequest struct {
	Login    string     `json:"login"`
	Password string     `json:"password"`
	Email    string     `json:"email"`
	Role     model.Role `json:"role"`
}

func (a *auth) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Login == "" || req.Password == "" || req.Email == "" {
		http.Error(w, "login, password and email are required", http.StatusBadRequest)
		return
	}
	// самостоятельно можно стать только участником или художником
	switch req.Role {
	case "":
		req.Role = model.RoleMember
	case model.RoleMember, model.RoleArtist:
	default:
		http.Error(w, "role is not allowed", http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user := model.User{Login: req.Login, Email: req.Email, Role: req.Role}
	user.Code, err = a.store.AuthRegister(r.Context(), user, hash)
	if err != nil {
		switch err {
		case store.ErrAlreadyExists:
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	a.setToken(w, user)
}

type LoginJSONRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (a *auth) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, hash, err := a.store.AuthLogin(r.Context(), req.Login)
	if err != nil {
		switch err {
		case store.ErrNoRows:
			http.Error(w, ErrWrongCredentials.Error(), http.StatusUnauthorized)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(req.Password)) != nil {
		http.Error(w, ErrWrongCredentials.Error(), http.StatusUnauthorized)
		return
	}

	a.setToken(w, user)
}

func (a *auth) setToken(w http.ResponseWriter, user model.User) {
	tokenString, err := a.issuer.BuildJWTString(user.Code, user.Role)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieUserToken,
		Value:    tokenString,
		Path:     "/",
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusOK)
}

func (a *auth) Middleware(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// получение пользователя
		claims, err := a.getClaims(w, r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		// записываем, заголовки клиента перетираются
		r.Header.Set(HeaderUserCodeKey, claims.UserCode)
		r.Header.Set(HeaderUserRoleKey, string(claims.Role))

		// передаём управление хендлеру
		h.ServeHTTP(w, r)
	}
}

func (a *auth) getClaims(_ http.ResponseWriter, r *http.Request) (token.Claims, error) {
	// куки пользователя
	tokenCookie, err := r.Cookie(cookieUserToken)
	if err != nil {
		return token.Claims{}, err
	}
	return a.issuer.GetClaims(tokenCookie.Value)
}

// ActorFromRequest - пользователь, записанный Middleware
func ActorFromRequest(r *http.Request) Actor {
	role := model.Role(r.Header.Get(HeaderUserRoleKey))
	if role == "" {
		role = model.RoleGuest
	}
	return Actor{Code: r.Header.Get(HeaderUserCodeKey), Role: role}
}
