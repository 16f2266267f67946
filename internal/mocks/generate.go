// Package mocks provides gomock implementations of the gateway ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	tokens := mocks.NewMockTokenManager(ctrl)
//	tokens.EXPECT().GetUserAccessToken(gomock.Any(), gomock.Any(), gomock.Any()).Return(token, nil)
package mocks

// Generate mock for TokenManager interface from internal/ports package.
// This creates MockTokenManager with methods: GetUserAccessToken, GetClientAccessToken
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=token_manager_mock.go github.com/target/mmk-bff/internal/ports TokenManager

// Generate mock for TokenRevoker interface from internal/ports package.
// This creates MockTokenRevoker with methods: RevokeRefreshToken
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=token_revoker_mock.go github.com/target/mmk-bff/internal/ports TokenRevoker

// Generate mock for SessionStore interface from internal/ports package.
// This creates MockSessionStore with methods: Create, Get, GetMany, Update, Delete, DeleteMany
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=session_store_mock.go github.com/target/mmk-bff/internal/ports SessionStore

// Generate mock for ExpiredSessionCleaner interface from internal/ports package.
// This creates MockExpiredSessionCleaner with methods: DeleteExpired
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=expired_session_cleaner_mock.go github.com/target/mmk-bff/internal/ports ExpiredSessionCleaner
