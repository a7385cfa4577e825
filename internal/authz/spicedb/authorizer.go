// Package spicedb implements authz.Authorizer with SpiceDB permission checks.
package spicedb

import (
	"context"
	"crypto/tls"
	"fmt"

	v1pb "github.com/authzed/authzed-go/proto/authzed/api/v1"
	"github.com/authzed/authzed-go/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"authflow/internal/authz"
	"authflow/internal/observability/logging"
)

// Config holds SpiceDB authorizer configuration
type Config struct {
	// Endpoint is the SpiceDB endpoint
	Endpoint string

	// Insecure indicates whether to use an insecure connection
	Insecure bool

	// Token is the SpiceDB authentication token
	Token string

	// ResourceType is the SpiceDB resource type
	ResourceType string

	// ResourceID is the default SpiceDB resource ID
	ResourceID string

	// SubjectType is the SpiceDB subject type
	SubjectType string
}

// PermissionChecker is the part of the SpiceDB client the authorizer uses
type PermissionChecker interface {
	CheckPermission(ctx context.Context, in *v1pb.CheckPermissionRequest, opts ...grpc.CallOption) (*v1pb.CheckPermissionResponse, error)
}

// Authorizer implements authorization using SpiceDB
type Authorizer struct {
	client       PermissionChecker
	resourceType string
	resourceID   string
	subjectType  string
	logger       *logging.Logger
}

// bearerToken attaches the preshared key to every call
type bearerToken struct {
	token    string
	insecure bool
}

func (b bearerToken) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}

func (b bearerToken) RequireTransportSecurity() bool {
	return !b.insecure
}

// Dial creates a SpiceDB client for config
func Dial(config Config) (*authzed.Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("SpiceDB endpoint is required")
	}

	transport := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	if config.Insecure {
		transport = insecure.NewCredentials()
	}

	client, err := authzed.NewClient(config.Endpoint,
		grpc.WithTransportCredentials(transport),
		grpc.WithPerRPCCredentials(bearerToken{token: config.Token, insecure: config.Insecure}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create SpiceDB client: %w", err)
	}
	return client, nil
}

// New creates a new SpiceDB authorizer
func New(config Config, client PermissionChecker, logger *logging.Logger) *Authorizer {
	return &Authorizer{
		client:       client,
		resourceType: config.ResourceType,
		resourceID:   config.ResourceID,
		subjectType:  config.SubjectType,
		logger:       logger.WithModule("authz.spicedb"),
	}
}

// Authorize checks if the identity has the specified permission on the resource
func (a *Authorizer) Authorize(ctx context.Context, req *authz.Request) *authz.Response {
	if !req.Identity.Valid() {
		return &authz.Response{
			Decision: authz.Unauthorized,
			Reason:   "No identity provided",
		}
	}

	logger := logging.FromContextOr(ctx, a.logger)

	resourceID := req.Resource
	if resourceID == "" {
		resourceID = a.resourceID
	}

	checkReq := &v1pb.CheckPermissionRequest{
		Resource: &v1pb.ObjectReference{
			ObjectType: a.resourceType,
			ObjectId:   resourceID,
		},
		Permission: req.Permission,
		Subject: &v1pb.SubjectReference{
			Object: &v1pb.ObjectReference{
				ObjectType: a.subjectType,
				ObjectId:   req.Identity.Subject,
			},
		},
	}

	resp, err := a.client.CheckPermission(ctx, checkReq)
	if err != nil {
		logger.Error("Error checking permission with SpiceDB",
			logging.Err(err),
			"subject", req.Identity.Subject,
			"resource", resourceID,
			"permission", req.Permission,
		)
		return &authz.Response{
			Decision: authz.Error,
			Reason:   "Error checking permission",
			Error:    err,
		}
	}

	if resp.GetPermissionship() == v1pb.CheckPermissionResponse_PERMISSIONSHIP_HAS_PERMISSION {
		return &authz.Response{
			Decision: authz.Allow,
			Reason:   "Permission granted",
		}
	}

	return &authz.Response{
		Decision: authz.Deny,
		Reason:   "Permission denied",
	}
}

var _ authz.Authorizer = (*Authorizer)(nil)
