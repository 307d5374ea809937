package token

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"encore/pkg/interfaces"
	"encore/pkg/types"
)

// TokenValidity is the fixed credential window. Both the privilege expiry
// and the overall token expiry sit at issuance + this duration.
const TokenValidity = 3600 * time.Second

// Privilege levels embedded in the credential, as the media provider
// understands them.
const (
	PrivilegePublish   = "publish"
	PrivilegeSubscribe = "subscribe"
)

// Claims is the signed payload the client presents to the media provider.
type Claims struct {
	Room               string `json:"room"`
	UID                uint32 `json:"uid"`
	Role               string `json:"role"`
	Privilege          string `json:"privilege"`
	PrivilegeExpiresAt int64  `json:"privilege_expires_at"`
	jwt.RegisteredClaims
}

// Issuer produces signed, time-boxed access credentials for the external
// media provider. Issue is a pure function of its inputs plus the clock:
// no state, no persistence, safe to call concurrently.
type Issuer struct {
	appID          string
	appCertificate string
	store          interfaces.SessionStore
	now            func() time.Time
}

// NewIssuer creates a credential issuer. Empty secrets are accepted here;
// issuance reports them as a configuration error.
func NewIssuer(appID, appCertificate string, store interfaces.SessionStore) *Issuer {
	return &Issuer{
		appID:          appID,
		appCertificate: appCertificate,
		store:          store,
		now:            time.Now,
	}
}

// Issue signs a credential binding the room, participant uid, and role.
// Host credentials carry publish privileges, audience subscribe-only.
func (i *Issuer) Issue(roomName string, uid uint32, role string) (string, error) {
	if i.appID == "" || i.appCertificate == "" {
		return "", types.E(types.KindConfigurationError, "media credentials not configured")
	}
	if !types.IsValidRole(role) {
		return "", types.Ef(types.KindInvalidArgument, "invalid role %q: must be %q or %q", role, types.RoleHost, types.RoleAudience)
	}

	privilege := PrivilegeSubscribe
	if role == types.RoleHost {
		privilege = PrivilegePublish
	}

	now := i.now()
	expiresAt := now.Add(TokenValidity)

	claims := Claims{
		Room:               roomName,
		UID:                uid,
		Role:               role,
		Privilege:          privilege,
		PrivilegeExpiresAt: expiresAt.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.appID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.appCertificate))
	if err != nil {
		return "", fmt.Errorf("failed to sign media credential: %w", err)
	}
	return signed, nil
}

// IssueForSession issues a credential for the session's room under a fresh
// random participant uid. Collisions across the uid range are accepted;
// the media provider tolerates them. Joining the media room and being
// counted by the registry are independent client actions, so nothing here
// touches session state.
func (i *Issuer) IssueForSession(ctx context.Context, sessionID, role string) (*types.Credential, error) {
	session, err := i.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	uid := randomUID()
	signed, err := i.Issue(session.RoomName, uid, role)
	if err != nil {
		return nil, err
	}

	return &types.Credential{
		Token:    signed,
		RoomName: session.RoomName,
		UID:      uid,
		AppID:    i.appID,
	}, nil
}

// randomUID draws a participant uid uniform over [1, 2^31).
func randomUID() uint32 {
	return uint32(rand.Int31n(math.MaxInt32-1)) + 1
}
