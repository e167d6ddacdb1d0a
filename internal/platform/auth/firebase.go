package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/vendorhub/marketplace/internal/platform/config"
)

const defaultAdminTimeout = 5 * time.Second

// Contact is the notification-facing view of a Firebase user.
type Contact struct {
	UID         string
	Email       string
	DisplayName string
	Locale      string
}

// FirebaseClient wraps the Admin SDK auth client with bounded calls.
type FirebaseClient struct {
	client  *firebaseauth.Client
	timeout time.Duration
}

// NewFirebaseClient initialises the Admin SDK for the configured project.
func NewFirebaseClient(ctx context.Context, cfg config.FirebaseConfig) (*FirebaseClient, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("firebase project id is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}
	return &FirebaseClient{client: client, timeout: defaultAdminTimeout}, nil
}

// VerifyIDToken checks the ID token signature, expiry and audience.
func (c *FirebaseClient) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.VerifyIDToken(ctx, idToken)
}

// Contact loads the user record for uid.
func (c *FirebaseClient) Contact(ctx context.Context, uid string) (Contact, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	record, err := c.client.GetUser(ctx, uid)
	if err != nil {
		return Contact{}, fmt.Errorf("get user %s: %w", uid, err)
	}
	return contactFromRecord(record), nil
}

// ContactsWithRole scans the user directory for accounts whose role claim
// includes role. Disabled accounts are skipped.
func (c *FirebaseClient) ContactsWithRole(ctx context.Context, role string) ([]Contact, error) {
	role = normaliseRole(role)
	var contacts []Contact
	iter := c.client.Users(ctx, "")
	for {
		user, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		if user.Disabled {
			continue
		}
		if hasRole(rolesFromClaims(user.CustomClaims, roleClaim), role) {
			contacts = append(contacts, contactFromRecord(user.UserRecord))
		}
	}
	return contacts, nil
}

func contactFromRecord(record *firebaseauth.UserRecord) Contact {
	if record == nil || record.UserInfo == nil {
		return Contact{}
	}
	contact := Contact{
		UID:         record.UID,
		Email:       record.Email,
		DisplayName: record.DisplayName,
	}
	contact.Locale = claimString(record.CustomClaims, localeClaim)
	return contact
}

func hasRole(roles []string, role string) bool {
	for _, candidate := range roles {
		if candidate == role {
			return true
		}
	}
	return false
}
