package tenantkit

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Query parameters consumed by the login and callback endpoints.
const (
	paramState              = "state"
	paramCode               = "code"
	paramError              = "error"
	paramErrorDescription   = "error_description"
	paramTenantDomain       = "tenant_domain"
	paramTenantCustomDomain = "tenant_custom_domain"
	paramLoginHint          = "login_hint"
	paramReturnURL          = "return_url"
)

// resolveTenantCustomDomain reads the tenant_custom_domain query parameter,
// which overrides both tenant modes when present.
func resolveTenantCustomDomain(r *http.Request) (string, error) {
	values := r.URL.Query()[paramTenantCustomDomain]
	if len(values) > 1 {
		return "", validationErr("duplicate %s parameter", paramTenantCustomDomain)
	}
	if len(values) == 1 {
		return values[0], nil
	}
	return "", nil
}

// resolveTenantDomainName derives the tenant from the request per the
// configured mode: the host's first label in subdomain mode, the
// tenant_domain query parameter otherwise. Returns "" when the request
// carries no tenant; defaults are applied by the caller.
func (s *AuthService) resolveTenantDomainName(r *http.Request) (string, error) {
	if s.cfg.UseTenantSubdomains {
		return s.tenantFromSubdomain(r.Host), nil
	}

	values := r.URL.Query()[paramTenantDomain]
	if len(values) > 1 {
		return "", validationErr("duplicate %s parameter", paramTenantDomain)
	}
	if len(values) == 1 {
		return values[0], nil
	}
	return "", nil
}

// tenantFromSubdomain accepts the host's first label as the tenant only when
// the remaining host exactly equals the configured root domain.
func (s *AuthService) tenantFromSubdomain(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(host)

	label, rest, found := strings.Cut(host, ".")
	if !found || label == "" {
		return ""
	}
	if rest != strings.ToLower(s.cfg.RootDomain) {
		return ""
	}
	return label
}

// tenantHost joins a tenant domain with the application domain. Custom-domain
// deployments use a subdomain ("tenant.app.example.com"), default deployments
// a vanity prefix ("tenant-app.example.com").
func (s *AuthService) tenantHost(tenantDomainName string) string {
	if s.cfg.UseCustomDomains {
		return tenantDomainName + "." + s.cfg.ApplicationDomain
	}
	return tenantDomainName + "-" + s.cfg.ApplicationDomain
}

// platformHost picks the host for authorize and logout URLs:
// custom-domain parameter, then the request's tenant, then the configured
// default custom domain, then the configured default tenant domain.
// Returns "" when nothing applies; callers fall back to the app login page.
func (s *AuthService) platformHost(tenantDomainName, tenantCustomDomain, defaultTenantDomain, defaultCustomDomain string) string {
	switch {
	case tenantCustomDomain != "":
		return tenantCustomDomain
	case tenantDomainName != "":
		return s.tenantHost(tenantDomainName)
	case defaultCustomDomain != "":
		return defaultCustomDomain
	case defaultTenantDomain != "":
		return s.tenantHost(defaultTenantDomain)
	default:
		return ""
	}
}

// tenantLoginURL builds the URL that restarts the login for the tenant the
// callback ran against. Query-parameter deployments carry the tenant back as
// a parameter; subdomain deployments substitute the placeholder.
func (s *AuthService) tenantLoginURL(tenantDomainName, tenantCustomDomain string) string {
	var base string
	switch {
	case s.cfg.UseTenantSubdomains && tenantDomainName != "":
		base = strings.ReplaceAll(s.cfg.LoginURL, TenantDomainToken, tenantDomainName)
	case tenantDomainName != "":
		base = appendQueryParam(s.cfg.LoginURL, paramTenantDomain, tenantDomainName)
	default:
		return s.appLoginURL()
	}

	if tenantCustomDomain != "" {
		base = appendQueryParam(base, paramTenantCustomDomain, tenantCustomDomain)
	}
	return base
}

// appLoginURL is the application-level login page used when no tenant
// context can be established.
func (s *AuthService) appLoginURL() string {
	if s.cfg.CustomApplicationLoginPageURL != "" {
		return s.cfg.CustomApplicationLoginPageURL
	}
	return "https://" + s.cfg.ApplicationDomain + "/login"
}

// tenantRedirectURI substitutes the tenant into the redirect URI template.
func (s *AuthService) tenantRedirectURI(tenantDomainName string) string {
	return strings.ReplaceAll(s.cfg.RedirectURI, TenantDomainToken, tenantDomainName)
}

func appendQueryParam(rawURL, key, value string) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + key + "=" + url.QueryEscape(value)
}
