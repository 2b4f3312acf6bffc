package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/picklepantry/api/internal/platform/config"
)

// FirebaseVerifier verifies storefront ID tokens with the Firebase Admin SDK.
type FirebaseVerifier struct {
	client  *firebaseauth.Client
	timeout time.Duration
}

// NewFirebaseVerifier initialises the Admin SDK for cfg's project.
func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig, timeout time.Duration) (*FirebaseVerifier, error) {
	if cfg.ProjectID == "" {
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
	if timeout <= 0 {
		timeout = defaultVerifyTimeout
	}
	return &FirebaseVerifier{client: client, timeout: timeout}, nil
}

// VerifyIDToken checks signature, expiry and audience of idToken.
func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	return v.client.VerifyIDToken(ctx, idToken)
}
