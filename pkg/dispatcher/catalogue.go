package dispatcher

import "github.com/morezero/wallet-bridge/pkg/value"

// Built-in operation names.
const (
	OpEncrypt                      = "encrypt"
	OpDecrypt                      = "decrypt"
	OpGenerateAES256GCMCryptoKey   = "generateAES256GCMCryptoKey"
	OpEncryptUsingCryptoKey        = "encryptUsingCryptoKey"
	OpDecryptUsingCryptoKey        = "decryptUsingCryptoKey"
	OpCreateAction                 = "createAction"
	OpCreateHmac                   = "createHmac"
	OpVerifyHmac                   = "verifyHmac"
	OpCreateSignature              = "createSignature"
	OpVerifySignature              = "verifySignature"
	OpCreateCertificate            = "createCertificate"
	OpGetCertificates              = "getCertificates"
	OpProveCertificate             = "proveCertificate"
	OpSubmitDirectTransaction      = "submitDirectTransaction"
	OpGetPublicKey                 = "getPublicKey"
	OpGetVersion                   = "getVersion"
	OpIsAuthenticated              = "isAuthenticated"
	OpWaitForAuthentication        = "waitForAuthentication"
	OpCreatePushDropScript         = "createPushDropScript"
	OpParapetJSONQuery             = "parapetJSONQuery"
	OpDownloadUHRPFile             = "downloadUHRPFile"
	OpNewAuthriteRequest           = "newAuthriteRequest"
	OpCreateOutputScriptFromPubKey = "createOutputScriptFromPubKey"
)

// Counterparty sentinel for the caller's own key.
const CounterpartySelf = "self"

func def(v value.Value) *value.Value { return &v }

func required(name string, kind ParamKind) Param {
	return Param{Name: name, Kind: kind, Required: true}
}

func optional(name string, kind ParamKind, d value.Value) Param {
	return Param{Name: name, Kind: kind, Default: def(d)}
}

var (
	emptyString = value.String("")
	falseValue  = value.Bool(false)
	selfValue   = value.String(CounterpartySelf)
)

// Builtin returns the standard wallet operation table. The slice is freshly allocated.
func Builtin() []Operation {
	return []Operation{
		{
			Name: OpEncrypt,
			Params: []Param{
				{Name: "plaintext", Kind: KindString, Required: true, Encoding: EncodeBase64},
				required("protocolID", KindAny),
				required("keyID", KindString),
				optional("counterparty", KindString, selfValue),
				optional("returnType", KindString, value.String("string")),
			},
			Result: ResultString,
		},
		{
			Name: OpDecrypt,
			Params: []Param{
				required("ciphertext", KindString),
				required("protocolID", KindAny),
				required("keyID", KindString),
				optional("counterparty", KindString, selfValue),
				optional("returnType", KindString, value.String("string")),
			},
			Result: ResultString,
		},
		{Name: OpGenerateAES256GCMCryptoKey, Result: ResultString},
		{
			Name: OpEncryptUsingCryptoKey,
			Params: []Param{
				required("plaintext", KindString),
				required("base64CryptoKey", KindString),
				{Name: "returnType", Kind: KindString, Default: def(value.String("base64")), OneOf: []string{"base64"}},
			},
			Result: ResultString,
		},
		{
			Name: OpDecryptUsingCryptoKey,
			Params: []Param{
				required("ciphertext", KindString),
				required("base64CryptoKey", KindString),
				{Name: "returnType", Kind: KindString, Default: def(value.String("base64")), OneOf: []string{"base64"}},
			},
			Result: ResultString,
		},
		{
			Name: OpCreateAction,
			Params: []Param{
				{Name: "inputs", OmitIfNull: true},
				required("outputs", KindAny),
				required("description", KindString),
				{Name: "bridges", OmitIfNull: true},
				{Name: "labels", OmitIfNull: true},
			},
			Result: ResultBody,
		},
		{
			Name: OpCreateHmac,
			Params: []Param{
				{Name: "data", Kind: KindString, Required: true, Encoding: EncodeBase64},
				required("protocolID", KindAny),
				required("keyID", KindString),
				optional("description", KindString, emptyString),
				optional("counterparty", KindString, selfValue),
				optional("privileged", KindBool, falseValue),
			},
			Result: ResultString,
		},
		{
			Name: OpVerifyHmac,
			Params: []Param{
				{Name: "data", Kind: KindString, Required: true, Encoding: EncodeCanonicalBase64},
				{Name: "hmac", Kind: KindString, Required: true, Encoding: EncodeCanonicalBase64},
				required("protocolID", KindAny),
				required("keyID", KindString),
				optional("description", KindString, emptyString),
				optional("counterparty", KindString, emptyString),
				optional("privileged", KindBool, falseValue),
			},
			Result: ResultBool,
		},
		{
			Name: OpCreateSignature,
			Params: []Param{
				{Name: "data", Kind: KindString, Required: true, Encoding: EncodeBase64},
				required("protocolID", KindAny),
				required("keyID", KindString),
				optional("description", KindString, emptyString),
				optional("counterparty", KindString, emptyString),
				optional("privileged", KindBool, falseValue),
			},
			Result: ResultString,
		},
		{
			Name: OpVerifySignature,
			Params: []Param{
				{Name: "data", Kind: KindString, Required: true, Encoding: EncodeCanonicalBase64},
				{Name: "signature", Kind: KindString, Required: true, Encoding: EncodeCanonicalBase64},
				required("protocolID", KindAny),
				required("keyID", KindString),
				optional("description", KindString, emptyString),
				optional("counterparty", KindString, emptyString),
				optional("privileged", KindBool, falseValue),
				optional("reason", KindString, emptyString),
			},
			Result: ResultBool,
		},
		{
			Name: OpCreateCertificate,
			Params: []Param{
				required("certificateType", KindString),
				required("fieldObject", KindAny),
				required("certifierUrl", KindString),
				required("certifierPublicKey", KindString),
			},
			Result: ResultBody,
		},
		{
			Name: OpGetCertificates,
			Call: "ninja.findCertificates",
			Params: []Param{
				required("certifiers", KindAny),
				required("types", KindAny),
			},
			Result: ResultBody,
		},
		{
			Name: OpProveCertificate,
			Params: []Param{
				required("certificate", KindAny),
				{Name: "fieldsToReveal"},
				required("verifierPublicIdentityKey", KindString),
			},
			Result: ResultBody,
		},
		{
			Name: OpSubmitDirectTransaction,
			Call: "ninja.submitDirectTransaction",
			Params: []Param{
				{Name: "protocolID", Wire: "protocol", Required: true},
				required("transaction", KindAny),
				required("senderIdentityKey", KindString),
				required("note", KindString),
				required("amount", KindInteger),
				optional("derivationPrefix", KindString, emptyString),
			},
			Result: ResultBody,
		},
		{
			Name: OpGetPublicKey,
			Params: []Param{
				optional("protocolID", KindAny, emptyString),
				optional("keyID", KindString, emptyString),
				// The wallet reads this misspelled key.
				{Name: "privileged", Wire: "priviliged", Kind: KindBool, Default: def(falseValue)},
				optional("identityKey", KindBool, falseValue),
				optional("reason", KindString, emptyString),
				optional("counterparty", KindString, selfValue),
				optional("description", KindString, emptyString),
			},
			Result: ResultString,
		},
		{Name: OpGetVersion, Result: ResultString},
		{Name: OpIsAuthenticated, Result: ResultLooseBool},
		{Name: OpWaitForAuthentication, Result: ResultLooseBool, NoDeadline: true},
		{
			Name: OpCreatePushDropScript,
			Call: "pushdrop.create",
			Params: []Param{
				required("fields", KindAny),
				required("protocolID", KindAny),
				required("keyID", KindString),
			},
			Result: ResultString,
		},
		{
			Name: OpParapetJSONQuery,
			Params: []Param{
				required("resolvers", KindAny),
				required("bridge", KindString),
				required("request", KindAny),
			},
			Result: ResultBody,
		},
		{
			Name: OpDownloadUHRPFile,
			Call: "downloadFile",
			Params: []Param{
				required("URL", KindString),
				required("bridgeportResolvers", KindAny),
			},
			Result: ResultBytes,
		},
		{
			Name: OpNewAuthriteRequest,
			Call: "newJSONAuthriteRequest",
			Params: []Param{
				required("params", KindAny),
				required("requestUrl", KindString),
				required("fetchConfig", KindAny),
				optional("useNewClient", KindBool, falseValue),
			},
			Result: ResultBody,
		},
		{
			Name: OpCreateOutputScriptFromPubKey,
			Params: []Param{
				required("derivedPublicKey", KindString),
			},
			Result: ResultString,
		},
	}
}
