package cognito

import (
	"context"
	"encoding/json"

	"github.com/arvigo/idsession"
)

const (
	flowUserPassword = "USER_PASSWORD_AUTH"
	flowRefreshToken = "REFRESH_TOKEN_AUTH"

	challengeSoftwareTokenMFA    = "SOFTWARE_TOKEN_MFA"
	challengeNewPasswordRequired = "NEW_PASSWORD_REQUIRED"
)

// reservedAttributes are pool-managed names the NEW_PASSWORD_REQUIRED
// response must not echo back; the provider rejects the whole call when any
// of them is present.
var reservedAttributes = map[string]bool{
	"email":          true,
	"email_verified": true,
}

// Authenticate runs USER_PASSWORD_AUTH and resolves challenges the caller
// already has the answer to. A SOFTWARE_TOKEN_MFA challenge with an empty
// otp, or any NEW_PASSWORD_REQUIRED challenge, is returned as a pending
// challenge instead of a session; the opaque Session continuation token
// rides along in ProviderState.
func (c *Client) Authenticate(ctx context.Context, identity, secret, otp string) (*idsession.AuthOutcome, error) {
	const op = "cognito.Authenticate"

	params := map[string]string{
		"USERNAME": identity,
		"PASSWORD": secret,
	}
	if h := c.secretHash(identity); h != "" {
		params["SECRET_HASH"] = h
	}

	var resp initiateAuthResponse
	err := c.call(ctx, "InitiateAuth", op, initiateAuthRequest{
		ClientID:       c.clientID,
		AuthFlow:       flowUserPassword,
		AuthParameters: params,
	}, &resp)
	if err != nil {
		return nil, err
	}

	switch resp.ChallengeName {
	case "":
		sess, err := sessionFromResult(op, resp.AuthenticationResult, "")
		if err != nil {
			return nil, err
		}
		return &idsession.AuthOutcome{Session: sess}, nil

	case challengeSoftwareTokenMFA:
		if otp == "" {
			return &idsession.AuthOutcome{Challenge: &idsession.Challenge{
				Kind:            idsession.ChallengeSecondFactor,
				PendingIdentity: identity,
				ProviderState:   resp.Session,
			}}, nil
		}
		return c.answerSecondFactor(ctx, identity, otp, resp.Session)

	case challengeNewPasswordRequired:
		return &idsession.AuthOutcome{Challenge: &idsession.Challenge{
			Kind:              idsession.ChallengeNewCredential,
			PendingIdentity:   identity,
			PendingAttributes: pendingAttributes(resp.ChallengeParameters),
			ProviderState:     resp.Session,
		}}, nil

	default:
		return nil, idsession.E(idsession.KindProviderUnreachable, op,
			errUnsupportedChallenge(resp.ChallengeName))
	}
}

func (c *Client) answerSecondFactor(ctx context.Context, identity, otp, session string) (*idsession.AuthOutcome, error) {
	const op = "cognito.Authenticate"

	responses := map[string]string{
		"USERNAME":                identity,
		"SOFTWARE_TOKEN_MFA_CODE": otp,
	}
	if h := c.secretHash(identity); h != "" {
		responses["SECRET_HASH"] = h
	}

	var resp respondToAuthChallengeResponse
	err := c.call(ctx, "RespondToAuthChallenge", op, respondToAuthChallengeRequest{
		ClientID:           c.clientID,
		ChallengeName:      challengeSoftwareTokenMFA,
		Session:            session,
		ChallengeResponses: responses,
	}, &resp)
	if err != nil {
		return nil, err
	}

	sess, err := sessionFromResult(op, resp.AuthenticationResult, "")
	if err != nil {
		return nil, err
	}
	return &idsession.AuthOutcome{Session: sess}, nil
}

// CompleteCredentialChallenge answers NEW_PASSWORD_REQUIRED. Pending
// attributes travel back as userAttributes.<name> entries, minus the
// pool-managed reserved names.
func (c *Client) CompleteCredentialChallenge(ctx context.Context, challenge *idsession.Challenge, newSecret string) (*idsession.Session, error) {
	const op = "cognito.CompleteCredentialChallenge"

	responses := map[string]string{
		"USERNAME":     challenge.PendingIdentity,
		"NEW_PASSWORD": newSecret,
	}
	if h := c.secretHash(challenge.PendingIdentity); h != "" {
		responses["SECRET_HASH"] = h
	}
	for name, value := range challenge.PendingAttributes {
		if reservedAttributes[name] {
			continue
		}
		responses["userAttributes."+name] = attributeString(value)
	}

	var resp respondToAuthChallengeResponse
	err := c.call(ctx, "RespondToAuthChallenge", op, respondToAuthChallengeRequest{
		ClientID:           c.clientID,
		ChallengeName:      challengeNewPasswordRequired,
		Session:            challenge.ProviderState,
		ChallengeResponses: responses,
	}, &resp)
	if err != nil {
		return nil, err
	}

	return sessionFromResult(op, resp.AuthenticationResult, "")
}

// Refresh exchanges the refresh token for fresh access and id tokens.
// A revoked or expired refresh token is reported as (nil, nil), never as an
// error; the refresh grant keeps the old refresh token.
func (c *Client) Refresh(ctx context.Context, session *idsession.Session) (*idsession.Session, error) {
	const op = "cognito.Refresh"

	if session == nil || session.RefreshToken() == "" {
		return nil, nil
	}

	params := map[string]string{
		"REFRESH_TOKEN": session.RefreshToken(),
	}
	if h := c.secretHash(session.Username()); h != "" {
		params["SECRET_HASH"] = h
	}

	var resp initiateAuthResponse
	err := c.call(ctx, "InitiateAuth", op, initiateAuthRequest{
		ClientID:       c.clientID,
		AuthFlow:       flowRefreshToken,
		AuthParameters: params,
	}, &resp)
	if err != nil {
		if idsession.IsKind(err, idsession.KindInvalidCredential) ||
			idsession.IsKind(err, idsession.KindIdentityNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return sessionFromResult(op, resp.AuthenticationResult, session.RefreshToken())
}

// GlobalSignOut revokes every token issued to the principal.
func (c *Client) GlobalSignOut(ctx context.Context, session *idsession.Session) error {
	const op = "cognito.GlobalSignOut"
	if session == nil {
		return nil
	}
	return c.call(ctx, "GlobalSignOut", op, globalSignOutRequest{
		AccessToken: session.AccessToken(),
	}, nil)
}

// sessionFromResult builds a Session from an AuthenticationResult.
// fallbackRefresh fills in the refresh token when the grant omits it.
func sessionFromResult(op string, result *authenticationResult, fallbackRefresh string) (*idsession.Session, error) {
	if result == nil || result.AccessToken == "" {
		return nil, idsession.E(idsession.KindProviderUnreachable, op,
			errMissingAuthResult)
	}
	refresh := result.RefreshToken
	if refresh == "" {
		refresh = fallbackRefresh
	}
	return idsession.NewSession(result.AccessToken, result.IDToken, refresh), nil
}

// pendingAttributes decodes the userAttributes challenge parameter, a JSON
// object embedded as a string, into the normalized attribute map.
func pendingAttributes(params map[string]string) idsession.ProfileAttributes {
	raw, ok := params["userAttributes"]
	if !ok || raw == "" {
		return nil
	}
	var flat map[string]string
	if err := json.Unmarshal([]byte(raw), &flat); err != nil {
		return nil
	}
	attrs := make(idsession.ProfileAttributes, len(flat))
	for name, value := range flat {
		attrs[name] = idsession.NormalizeAttributeValue(value)
	}
	return attrs
}
