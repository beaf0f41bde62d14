package client

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"
)

// KeySessionCookies is where PersistentJar keeps the API cookies
const KeySessionCookies = "hpa_session_cookies"

// KeyValueStore is the slice of the preference store the jar needs
type KeyValueStore interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Remove(key string)
}

// storedCookie is the persisted form of a cookie
type storedCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

// PersistentJar is a cookie jar whose cookies for the API host survive
// between CLI invocations, the way a browser keeps its session cookie
type PersistentJar struct {
	store KeyValueStore
	base  *url.URL
	now   func() time.Time

	mu      sync.Mutex
	jar     *cookiejar.Jar
	cookies map[string]storedCookie
}

// NewPersistentJar creates a jar for baseURL, restoring saved cookies
func NewPersistentJar(baseURL string, store KeyValueStore) (*PersistentJar, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	j := &PersistentJar{
		jar:     jar,
		store:   store,
		base:    base,
		now:     time.Now,
		cookies: make(map[string]storedCookie),
	}
	j.restore()

	return j, nil
}

// SetCookies implements http.CookieJar
func (j *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.jar.SetCookies(u, cookies)

	if u.Host != j.base.Host {
		return
	}

	now := j.now()
	for _, c := range cookies {
		expires := c.Expires
		if c.MaxAge > 0 {
			expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}
		if c.MaxAge < 0 || (!expires.IsZero() && !expires.After(now)) {
			delete(j.cookies, c.Name)
			continue
		}
		j.cookies[c.Name] = storedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
	}
	j.save()
}

// Cookies implements http.CookieJar
func (j *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

// Clear forgets every cookie, in memory and in the store. The session is
// over locally even if the backend never expired its cookie.
func (j *PersistentJar) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()

	// cookiejar.New only fails on a bad PublicSuffixList option
	if jar, err := cookiejar.New(nil); err == nil {
		j.jar = jar
	}
	j.cookies = make(map[string]storedCookie)
	j.store.Remove(KeySessionCookies)
}

// restore loads saved cookies, skipping expired ones
func (j *PersistentJar) restore() {
	raw, ok := j.store.Get(KeySessionCookies)
	if !ok {
		return
	}

	var saved []storedCookie
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		return
	}

	now := j.now()
	cookies := make([]*http.Cookie, 0, len(saved))
	for _, s := range saved {
		if !s.Expires.IsZero() && !s.Expires.After(now) {
			continue
		}
		j.cookies[s.Name] = s
		cookies = append(cookies, &http.Cookie{
			Name:     s.Name,
			Value:    s.Value,
			Path:     s.Path,
			Domain:   s.Domain,
			Expires:  s.Expires,
			Secure:   s.Secure,
			HttpOnly: s.HttpOnly,
		})
	}
	j.jar.SetCookies(j.base, cookies)
}

func (j *PersistentJar) save() {
	saved := make([]storedCookie, 0, len(j.cookies))
	for _, c := range j.cookies {
		saved = append(saved, c)
	}
	data, err := json.Marshal(saved)
	if err != nil {
		return
	}
	j.store.Set(KeySessionCookies, string(data))
}
