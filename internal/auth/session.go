package auth

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/itskum47/judgeforge/internal/model"
)

// SessionService establishes and validates contestant sessions (§4.7),
// grounded on cms/server/contest/authentication.py's validate_login and
// authenticate_request.
type SessionService struct {
	store model.Store
	codec *CookieCodec
}

// NewSessionService builds a SessionService against store, signing cookies
// with codec.
func NewSessionService(store model.Store, codec *CookieCodec) *SessionService {
	return &SessionService{store: store, codec: codec}
}

var (
	ErrPasswordAuthDisabled = fmt.Errorf("auth: password authentication is disabled for this contest")
	ErrUnknownUser          = fmt.Errorf("auth: user not registered to contest")
	ErrWrongPassword        = fmt.Errorf("auth: wrong password")
	ErrForbiddenIP          = fmt.Errorf("auth: unauthorized IP address")
	ErrHiddenBlocked        = fmt.Errorf("auth: hidden participation blocked")
	ErrAmbiguousIP          = fmt.Errorf("auth: more than one participation shares this IP address")
	ErrCookieExpired        = fmt.Errorf("auth: cookie expired")
)

// Authenticate performs a username/password login for contestID, returning
// a signed cookie on success.
func (s *SessionService) Authenticate(ctx context.Context, contest *model.Contest, username, password, remoteIP string) (string, *model.Participation, error) {
	if !contest.AllowPasswordAuthentication {
		return "", nil, ErrPasswordAuthDisabled
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return "", nil, err
	}
	if user == nil {
		return "", nil, ErrUnknownUser
	}
	participation, err := s.store.GetParticipationByContestAndUser(ctx, contest.ID, user.ID)
	if err != nil {
		return "", nil, err
	}
	if participation == nil {
		return "", nil, ErrUnknownUser
	}

	storedHash := user.PasswordHash
	if participation.PasswordOverride != "" {
		storedHash = participation.PasswordOverride
	}
	ok, err := ValidatePassword(storedHash, password)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, ErrWrongPassword
	}

	if err := checkIPAndHidden(contest, participation, remoteIP, false); err != nil {
		return "", nil, err
	}

	token, err := s.codec.Encode(Claims{
		Username:     username,
		PasswordHash: storedHash,
		Timestamp:    time.Now(),
		Impersonated: false,
	})
	if err != nil {
		return "", nil, err
	}
	return token, participation, nil
}

// AuthenticateIP looks for the single participation whose IP allow-list
// contains remoteIP, for contests with IP autologin enabled. It returns
// ErrAmbiguousIP if more than one participation matches (a configuration
// mistake the original treats as a hard failure rather than picking one).
func (s *SessionService) AuthenticateIP(ctx context.Context, contest *model.Contest, remoteIP string) (*model.Participation, error) {
	if !contest.IPAutologin {
		return nil, nil
	}
	participations, err := s.store.ListParticipations(ctx, contest.ID)
	if err != nil {
		return nil, err
	}

	var match *model.Participation
	for _, p := range participations {
		if contest.BlockHiddenParticipations && p.Hidden {
			continue
		}
		if !ipListContains(p.IPAllowList, remoteIP) {
			continue
		}
		if match != nil {
			return nil, ErrAmbiguousIP
		}
		match = p
	}
	return match, nil
}

// Validate re-authenticates a returning request from its cookie: it
// re-looks-up the participation, compares the stored password hash
// (detecting rotation since the cookie was issued), checks the cookie's age
// against the contest's TTL, and re-checks IP restriction unless the cookie
// is an impersonation. On success it returns a refreshed cookie carrying the
// current timestamp, matching the original's "refresh on every successful
// request" behavior.
func (s *SessionService) Validate(ctx context.Context, contest *model.Contest, cookie, remoteIP string) (*model.Participation, string, error) {
	claims, err := s.codec.Decode(cookie)
	if err != nil {
		return nil, "", err
	}
	if !contest.AllowPasswordAuthentication && !claims.Impersonated {
		return nil, "", ErrPasswordAuthDisabled
	}
	if time.Since(claims.Timestamp) > contest.CookieDuration {
		return nil, "", ErrCookieExpired
	}

	user, err := s.store.GetUserByUsername(ctx, claims.Username)
	if err != nil {
		return nil, "", err
	}
	if user == nil {
		return nil, "", ErrUnknownUser
	}
	participation, err := s.store.GetParticipationByContestAndUser(ctx, contest.ID, user.ID)
	if err != nil {
		return nil, "", err
	}
	if participation == nil {
		return nil, "", ErrUnknownUser
	}

	storedHash := user.PasswordHash
	if participation.PasswordOverride != "" {
		storedHash = participation.PasswordOverride
	}
	if !claims.Impersonated && claims.PasswordHash != storedHash {
		return nil, "", ErrWrongPassword
	}

	if err := checkIPAndHidden(contest, participation, remoteIP, claims.Impersonated); err != nil {
		return nil, "", err
	}

	refreshed, err := s.codec.Encode(Claims{
		Username:     claims.Username,
		PasswordHash: storedHash,
		Timestamp:    time.Now(),
		Impersonated: claims.Impersonated,
	})
	if err != nil {
		return nil, "", err
	}
	return participation, refreshed, nil
}

func checkIPAndHidden(contest *model.Contest, participation *model.Participation, remoteIP string, impersonated bool) error {
	if contest.IPRestriction && !impersonated && len(participation.IPAllowList) > 0 && !ipListContains(participation.IPAllowList, remoteIP) {
		return ErrForbiddenIP
	}
	if contest.BlockHiddenParticipations && participation.Hidden && !impersonated {
		return ErrHiddenBlocked
	}
	return nil
}

// ipListContains reports whether remoteIP matches any entry of allowed,
// each of which may be a single address or a CIDR network.
func ipListContains(allowed []string, remoteIP string) bool {
	ip := net.ParseIP(remoteIP)
	if ip == nil {
		return false
	}
	for _, entry := range allowed {
		if _, network, err := net.ParseCIDR(entry); err == nil {
			if network.Contains(ip) {
				return true
			}
			continue
		}
		if entryIP := net.ParseIP(entry); entryIP != nil && entryIP.Equal(ip) {
			return true
		}
	}
	return false
}
