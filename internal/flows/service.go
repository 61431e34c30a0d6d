package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Login.Credentials != nil
}

func (s Service) Login(ctx context.Context, in LoginInput) LoginResult {
	return RunLogin(ctx, in, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, in RefreshInput) RefreshResult {
	return RunRefresh(ctx, in, s.deps.Refresh)
}

func (s Service) Validate(ctx context.Context, accessToken string) ValidateResult {
	return RunValidate(ctx, accessToken, s.deps.Validate)
}

func (s Service) Logout(ctx context.Context, in LogoutInput) (LogoutResult, error) {
	return RunLogout(ctx, in, s.deps.Logout)
}

func (s Service) LogoutAll(ctx context.Context, in LogoutInput) (LogoutAllResult, error) {
	return RunLogoutAll(ctx, in, s.deps.Logout)
}

func (s Service) Register(ctx context.Context, in RegisterInput) RegisterResult {
	return RunRegister(ctx, in, s.deps.Register)
}

func (s Service) RequestVerification(ctx context.Context, user *UserRecord, channel string) (string, error) {
	return RunRequestVerification(ctx, user, channel, s.deps.Verification)
}

func (s Service) ConfirmVerification(ctx context.Context, user *UserRecord, channel, secret string) (ConfirmVerificationResult, error) {
	return RunConfirmVerification(ctx, user, channel, secret, s.deps.Verification)
}

func (s Service) RequestPasswordReset(ctx context.Context, identifier string) (string, error) {
	return RunRequestPasswordReset(ctx, identifier, s.deps.Password)
}

func (s Service) ConfirmPasswordReset(ctx context.Context, identifier, code, newPassword string) (ResetPasswordResult, error) {
	return RunConfirmPasswordReset(ctx, identifier, code, newPassword, s.deps.Password)
}

func (s Service) ChangePassword(ctx context.Context, in ChangePasswordInput) (ChangePasswordResult, error) {
	return RunChangePassword(ctx, in, s.deps.Password)
}

func (s Service) SetAccountStatus(ctx context.Context, userID, status string) (StatusChangeResult, error) {
	return RunSetAccountStatus(ctx, userID, status, s.deps.Status)
}
