package grpc

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/sirupsen/logrus"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	apiKeyMetadata      = "x-api-key"
	healthServicePrefix = "/grpc.health.v1.Health/"
)

func APIKeyUnaryInterceptor(expected string) gogrpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *gogrpc.UnaryServerInfo, handler gogrpc.UnaryHandler) (any, error) {
		if err := authorize(ctx, info.FullMethod, expected); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func APIKeyStreamInterceptor(expected string) gogrpc.StreamServerInterceptor {
	return func(srv any, ss gogrpc.ServerStream, info *gogrpc.StreamServerInfo, handler gogrpc.StreamHandler) error {
		if err := authorize(ss.Context(), info.FullMethod, expected); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func authorize(ctx context.Context, fullMethod, expected string) error {
	if strings.HasPrefix(fullMethod, healthServicePrefix) {
		return nil
	}

	apiKey := incomingAPIKeyFromMetadata(ctx)
	if apiKey == "" || expected == "" {
		logrus.WithField("method", fullMethod).Debug("Missing x-api-key metadata")
		return status.Error(codes.Unauthenticated, "unauthorized")
	}
	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(expected)) != 1 {
		logrus.WithField("method", fullMethod).Warn("Invalid x-api-key metadata")
		return status.Error(codes.Unauthenticated, "unauthorized")
	}
	return nil
}

func incomingAPIKeyFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(apiKeyMetadata)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
