package cognito

// Wire payloads for the Identity Provider JSON API. Field names follow the
// wire exactly; omitempty keeps SECRET_HASH and other optional parameters
// out of requests for public clients.

type wireAttribute struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

type codeDeliveryDetails struct {
	Destination    string `json:"Destination"`
	DeliveryMedium string `json:"DeliveryMedium"`
	AttributeName  string `json:"AttributeName"`
}

type signUpRequest struct {
	ClientID       string          `json:"ClientId"`
	SecretHash     string          `json:"SecretHash,omitempty"`
	Username       string          `json:"Username"`
	Password       string          `json:"Password"`
	UserAttributes []wireAttribute `json:"UserAttributes,omitempty"`
}

type signUpResponse struct {
	UserConfirmed       bool                 `json:"UserConfirmed"`
	CodeDeliveryDetails *codeDeliveryDetails `json:"CodeDeliveryDetails"`
}

type confirmSignUpRequest struct {
	ClientID         string `json:"ClientId"`
	SecretHash       string `json:"SecretHash,omitempty"`
	Username         string `json:"Username"`
	ConfirmationCode string `json:"ConfirmationCode"`
}

type resendConfirmationCodeRequest struct {
	ClientID   string `json:"ClientId"`
	SecretHash string `json:"SecretHash,omitempty"`
	Username   string `json:"Username"`
}

type resendConfirmationCodeResponse struct {
	CodeDeliveryDetails *codeDeliveryDetails `json:"CodeDeliveryDetails"`
}

type forgotPasswordRequest struct {
	ClientID   string `json:"ClientId"`
	SecretHash string `json:"SecretHash,omitempty"`
	Username   string `json:"Username"`
}

type forgotPasswordResponse struct {
	CodeDeliveryDetails *codeDeliveryDetails `json:"CodeDeliveryDetails"`
}

type confirmForgotPasswordRequest struct {
	ClientID         string `json:"ClientId"`
	SecretHash       string `json:"SecretHash,omitempty"`
	Username         string `json:"Username"`
	ConfirmationCode string `json:"ConfirmationCode"`
	Password         string `json:"Password"`
}

type initiateAuthRequest struct {
	ClientID       string            `json:"ClientId"`
	AuthFlow       string            `json:"AuthFlow"`
	AuthParameters map[string]string `json:"AuthParameters"`
}

type authenticationResult struct {
	AccessToken  string `json:"AccessToken"`
	IDToken      string `json:"IdToken"`
	RefreshToken string `json:"RefreshToken"`
	ExpiresIn    int    `json:"ExpiresIn"`
	TokenType    string `json:"TokenType"`
}

type initiateAuthResponse struct {
	AuthenticationResult *authenticationResult `json:"AuthenticationResult"`
	ChallengeName        string                `json:"ChallengeName"`
	Session              string                `json:"Session"`
	ChallengeParameters  map[string]string     `json:"ChallengeParameters"`
}

type respondToAuthChallengeRequest struct {
	ClientID           string            `json:"ClientId"`
	ChallengeName      string            `json:"ChallengeName"`
	Session            string            `json:"Session,omitempty"`
	ChallengeResponses map[string]string `json:"ChallengeResponses"`
}

type respondToAuthChallengeResponse struct {
	AuthenticationResult *authenticationResult `json:"AuthenticationResult"`
	ChallengeName        string                `json:"ChallengeName"`
	Session              string                `json:"Session"`
	ChallengeParameters  map[string]string     `json:"ChallengeParameters"`
}

type globalSignOutRequest struct {
	AccessToken string `json:"AccessToken"`
}

type getUserRequest struct {
	AccessToken string `json:"AccessToken"`
}

type getUserResponse struct {
	Username            string          `json:"Username"`
	UserAttributes      []wireAttribute `json:"UserAttributes"`
	PreferredMfaSetting string          `json:"PreferredMfaSetting"`
	UserMFASettingList  []string        `json:"UserMFASettingList"`
}

type updateUserAttributesRequest struct {
	AccessToken    string          `json:"AccessToken"`
	UserAttributes []wireAttribute `json:"UserAttributes"`
}

type getUserAttributeVerificationCodeRequest struct {
	AccessToken   string `json:"AccessToken"`
	AttributeName string `json:"AttributeName"`
}

type getUserAttributeVerificationCodeResponse struct {
	CodeDeliveryDetails *codeDeliveryDetails `json:"CodeDeliveryDetails"`
}

type verifyUserAttributeRequest struct {
	AccessToken   string `json:"AccessToken"`
	AttributeName string `json:"AttributeName"`
	Code          string `json:"Code"`
}

type associateSoftwareTokenRequest struct {
	AccessToken string `json:"AccessToken"`
}

type associateSoftwareTokenResponse struct {
	SecretCode string `json:"SecretCode"`
	Session    string `json:"Session"`
}

type verifySoftwareTokenRequest struct {
	AccessToken        string `json:"AccessToken"`
	UserCode           string `json:"UserCode"`
	FriendlyDeviceName string `json:"FriendlyDeviceName,omitempty"`
}

type verifySoftwareTokenResponse struct {
	Status string `json:"Status"`
}

type softwareTokenMfaSettings struct {
	Enabled      bool `json:"Enabled"`
	PreferredMfa bool `json:"PreferredMfa"`
}

type setUserMFAPreferenceRequest struct {
	AccessToken              string                    `json:"AccessToken"`
	SoftwareTokenMfaSettings *softwareTokenMfaSettings `json:"SoftwareTokenMfaSettings,omitempty"`
}
