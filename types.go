package tenantkit

import (
	"github.com/tenantkit/tenantkit/provider"
	"github.com/tenantkit/tenantkit/session"
)

// UserInfo is the opaque claim set returned by the platform's userinfo
// endpoint.
type UserInfo = provider.UserInfo

// Role is a role assigned to the user in the authenticating tenant.
type Role = session.Role

// TokenData is the token set produced by a code exchange or refresh. The
// session derives an absolute expiry (now + ExpiresIn seconds) from it.
type TokenData struct {
	AccessToken  string
	ExpiresIn    int
	IDToken      string
	RefreshToken string
}

// CallbackData is everything a completed callback yields: the token set,
// the user's claims and roles, the tenant the login ran against, and state
// carried through from the login request.
type CallbackData struct {
	AccessToken  string
	ExpiresIn    int
	IDToken      string
	RefreshToken string

	UserInfo UserInfo
	Roles    []Role

	TenantDomainName   string
	TenantCustomDomain string

	CustomState map[string]any
	ReturnURL   string
}

// CallbackResultType discriminates the two terminal callback outcomes.
type CallbackResultType int

const (
	// CallbackCompleted means the login finished and Data is populated.
	CallbackCompleted CallbackResultType = iota

	// CallbackRedirectRequired means the login must restart and RedirectURL
	// is populated. This is the expected path for expired login state,
	// login_required, and rejected authorization codes.
	CallbackRedirectRequired
)

func (t CallbackResultType) String() string {
	switch t {
	case CallbackCompleted:
		return "completed"
	case CallbackRedirectRequired:
		return "redirect_required"
	default:
		return "unknown"
	}
}

// CallbackResult is the tagged outcome of processing a callback. Exactly one
// of Data or RedirectURL is set, per Type.
type CallbackResult struct {
	Type        CallbackResultType
	Data        *CallbackData
	RedirectURL string
}

func completedResult(data *CallbackData) *CallbackResult {
	return &CallbackResult{Type: CallbackCompleted, Data: data}
}

func redirectResult(url string) *CallbackResult {
	return &CallbackResult{Type: CallbackRedirectRequired, RedirectURL: url}
}
