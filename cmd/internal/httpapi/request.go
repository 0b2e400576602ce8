package httpapi

import (
	"net/http"
	"strings"
)

const (
	// HeaderToken is the designated credential field on API requests.
	HeaderToken = "X-Podium-Token"

	markerCookiePrefix = "podium_uid_"
	markerMaxAge       = 12 * 60 * 60 // one presentation day
)

// markerCookie scopes the identity marker to one session. Session uids are
// ULIDs, so the name is always a valid cookie name.
func markerCookie(sessionUID string) string {
	return markerCookiePrefix + sessionUID
}

// httpRequest adapts one HTTP exchange to the session.Request contract:
// credential from the token header, identity marker round-tripped as a
// per-session cookie.
type httpRequest struct {
	w http.ResponseWriter
	r *http.Request
}

func (q httpRequest) Credential() string {
	return strings.TrimSpace(q.r.Header.Get(HeaderToken))
}

func (q httpRequest) Marker(sessionUID string) (string, bool) {
	c, err := q.r.Cookie(markerCookie(sessionUID))
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func (q httpRequest) SetMarker(sessionUID, uid string) {
	http.SetCookie(q.w, &http.Cookie{
		Name:     markerCookie(sessionUID),
		Value:    uid,
		Path:     "/",
		MaxAge:   markerMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
