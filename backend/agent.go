package backend

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"euphoria.io/scope"
	"github.com/gorilla/securecookie"

	"cosmicwatch.io/sector/proto"
)

const (
	identityCookieName     = "identity"
	identityCookieDuration = 365 * 24 * time.Hour
)

// identityCredentials is the payload of the identity cookie. The auth
// service mints it at login; for visitors without one we mint an
// anonymous agent on the spot. Either way the hub only ever sees the
// resulting opaque identity.
type identityCredentials struct {
	ID     string `json:"i"`
	Name   string `json:"n"`
	Avatar string `json:"a,omitempty"`
}

func (ic *identityCredentials) Cookie(sc *securecookie.SecureCookie) (*http.Cookie, error) {
	encoded, err := json.Marshal(ic)
	if err != nil {
		return nil, err
	}

	secured, err := sc.Encode(identityCookieName, encoded)
	if err != nil {
		return nil, err
	}

	cookie := &http.Cookie{
		Name:     identityCookieName,
		Value:    secured,
		Path:     "/",
		Expires:  time.Now().Add(identityCookieDuration),
		HttpOnly: true,
	}
	return cookie, nil
}

func (ic *identityCredentials) identity() *identity {
	return &identity{
		view: proto.UserView{
			ID:     proto.UserID(ic.ID),
			Name:   ic.Name,
			Avatar: ic.Avatar,
		},
	}
}

type identity struct {
	view proto.UserView
}

func (id *identity) ID() proto.UserID      { return id.view.ID }
func (id *identity) Name() string          { return id.view.Name }
func (id *identity) View() *proto.UserView { v := id.view; return &v }

func assignAgent(ctx scope.Context, s *Server) (*identity, *http.Cookie, error) {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return nil, nil, fmt.Errorf("agent generation error: %s", err)
	}

	ic := &identityCredentials{
		ID:   "agent:" + hex.EncodeToString(suffix),
		Name: "drifter-" + hex.EncodeToString(suffix),
	}

	cookie, err := ic.Cookie(s.sc)
	if err != nil {
		return nil, nil, fmt.Errorf("agent generation error: %s", err)
	}

	return ic.identity(), cookie, nil
}

func getIdentity(ctx scope.Context, s *Server, r *http.Request) (
	proto.Identity, *http.Cookie, error) {

	cookie, err := r.Cookie(identityCookieName)
	if err != nil {
		return assignAgent(ctx, s)
	}

	encoded := []byte{}
	if err := s.sc.Decode(identityCookieName, cookie.Value, &encoded); err != nil {
		return assignAgent(ctx, s)
	}

	ic := identityCredentials{}
	if err := json.Unmarshal(encoded, &ic); err != nil {
		return assignAgent(ctx, s)
	}
	if ic.ID == "" {
		return assignAgent(ctx, s)
	}

	return ic.identity(), nil, nil
}
