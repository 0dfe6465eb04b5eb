// Package wallet is a typed client for the wallet operations carried over the bridge.
package wallet

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/morezero/wallet-bridge/pkg/dispatcher"
	"github.com/morezero/wallet-bridge/pkg/envelope"
	"github.com/morezero/wallet-bridge/pkg/value"
)

const logPrefix = "wallet:client"

// Caller runs a declared operation. *dispatcher.Dispatcher satisfies it.
type Caller interface {
	Call(ctx context.Context, name string, args *value.Object) (value.Value, error)
}

// Client wraps a Caller with one method per wallet operation.
type Client struct {
	caller Caller
}

// NewClient creates a Client.
func NewClient(caller Caller) *Client {
	return &Client{caller: caller}
}

// KeyRef identifies a derived key.
type KeyRef struct {
	ProtocolID   value.Value
	KeyID        string
	Counterparty string
}

func (k KeyRef) set(o *value.Object) *value.Object {
	o.Set("protocolID", k.ProtocolID).Set("keyID", value.String(k.KeyID))
	if k.Counterparty != "" {
		o.Set("counterparty", value.String(k.Counterparty))
	}
	return o
}

// Options carries the optional fields shared by signing and HMAC operations.
type Options struct {
	Description string
	Privileged  bool
	Reason      string
}

func (opts Options) set(o *value.Object) *value.Object {
	if opts.Description != "" {
		o.Set("description", value.String(opts.Description))
	}
	if opts.Privileged {
		o.Set("privileged", value.Bool(true))
	}
	return o
}

func (c *Client) str(ctx context.Context, op string, args *value.Object) (string, error) {
	v, err := c.caller.Call(ctx, op, args)
	if err != nil {
		return "", err
	}
	s, ok := v.AsString()
	if !ok {
		return "", fmt.Errorf("%s - %s returned %s, want string", logPrefix, op, v.Kind())
	}
	return s, nil
}

func (c *Client) boolean(ctx context.Context, op string, args *value.Object) (bool, error) {
	v, err := c.caller.Call(ctx, op, args)
	if err != nil {
		return false, err
	}
	b, ok := v.AsBool()
	if !ok {
		return false, fmt.Errorf("%s - %s returned %s, want bool", logPrefix, op, v.Kind())
	}
	return b, nil
}

// Encrypt encrypts UTF-8 plaintext. The plaintext is base64-encoded before sending.
func (c *Client) Encrypt(ctx context.Context, plaintext string, key KeyRef) (string, error) {
	return c.str(ctx, dispatcher.OpEncrypt, key.set(value.NewObject().Set("plaintext", value.String(plaintext))))
}

// Decrypt decrypts ciphertext produced by Encrypt.
func (c *Client) Decrypt(ctx context.Context, ciphertext string, key KeyRef) (string, error) {
	return c.str(ctx, dispatcher.OpDecrypt, key.set(value.NewObject().Set("ciphertext", value.String(ciphertext))))
}

// GenerateAES256GCMCryptoKey returns a new base64 symmetric key.
func (c *Client) GenerateAES256GCMCryptoKey(ctx context.Context) (string, error) {
	return c.str(ctx, dispatcher.OpGenerateAES256GCMCryptoKey, nil)
}

// EncryptUsingCryptoKey encrypts with a symmetric key and returns base64 ciphertext.
func (c *Client) EncryptUsingCryptoKey(ctx context.Context, plaintext, base64CryptoKey string) (string, error) {
	return c.str(ctx, dispatcher.OpEncryptUsingCryptoKey, value.NewObject().
		Set("plaintext", value.String(plaintext)).
		Set("base64CryptoKey", value.String(base64CryptoKey)))
}

// DecryptUsingCryptoKey decrypts with a symmetric key and returns base64 plaintext.
func (c *Client) DecryptUsingCryptoKey(ctx context.Context, ciphertext, base64CryptoKey string) (string, error) {
	return c.str(ctx, dispatcher.OpDecryptUsingCryptoKey, value.NewObject().
		Set("ciphertext", value.String(ciphertext)).
		Set("base64CryptoKey", value.String(base64CryptoKey)))
}

// CreateActionParams are the arguments of CreateAction. Null members are not sent.
type CreateActionParams struct {
	Inputs      value.Value
	Outputs     value.Value
	Description string
	Bridges     value.Value
	Labels      value.Value
}

// CreateAction builds and broadcasts a transaction and returns the wallet's response body.
func (c *Client) CreateAction(ctx context.Context, p CreateActionParams) (value.Value, error) {
	return c.caller.Call(ctx, dispatcher.OpCreateAction, value.NewObject().
		Set("inputs", p.Inputs).
		Set("outputs", p.Outputs).
		Set("description", value.String(p.Description)).
		Set("bridges", p.Bridges).
		Set("labels", p.Labels))
}

// CreateHmac computes an HMAC over UTF-8 data.
func (c *Client) CreateHmac(ctx context.Context, data string, key KeyRef, opts Options) (string, error) {
	args := value.NewObject().Set("data", value.String(data))
	return c.str(ctx, dispatcher.OpCreateHmac, opts.set(key.set(args)))
}

// VerifyHmac checks an HMAC. Data and hmac may be raw text or base64.
func (c *Client) VerifyHmac(ctx context.Context, data, hmac string, key KeyRef, opts Options) (bool, error) {
	args := value.NewObject().Set("data", value.String(data)).Set("hmac", value.String(hmac))
	return c.boolean(ctx, dispatcher.OpVerifyHmac, opts.set(key.set(args)))
}

// CreateSignature signs UTF-8 data.
func (c *Client) CreateSignature(ctx context.Context, data string, key KeyRef, opts Options) (string, error) {
	args := value.NewObject().Set("data", value.String(data))
	return c.str(ctx, dispatcher.OpCreateSignature, opts.set(key.set(args)))
}

// VerifySignature checks a signature. Data and signature may be raw text or base64.
func (c *Client) VerifySignature(ctx context.Context, data, signature string, key KeyRef, opts Options) (bool, error) {
	args := value.NewObject().Set("data", value.String(data)).Set("signature", value.String(signature))
	opts.set(key.set(args))
	if opts.Reason != "" {
		args.Set("reason", value.String(opts.Reason))
	}
	return c.boolean(ctx, dispatcher.OpVerifySignature, args)
}

// CreateCertificate requests a certificate from a certifier.
func (c *Client) CreateCertificate(ctx context.Context, certificateType string, fields value.Value, certifierURL, certifierPublicKey string) (value.Value, error) {
	return c.caller.Call(ctx, dispatcher.OpCreateCertificate, value.NewObject().
		Set("certificateType", value.String(certificateType)).
		Set("fieldObject", fields).
		Set("certifierUrl", value.String(certifierURL)).
		Set("certifierPublicKey", value.String(certifierPublicKey)))
}

// GetCertificates finds certificates by certifier and type.
func (c *Client) GetCertificates(ctx context.Context, certifiers, types value.Value) (value.Value, error) {
	return c.caller.Call(ctx, dispatcher.OpGetCertificates, value.NewObject().
		Set("certifiers", certifiers).
		Set("types", types))
}

// ProveCertificate reveals certificate fields to a verifier. A null fieldsToReveal is sent as null.
func (c *Client) ProveCertificate(ctx context.Context, certificate, fieldsToReveal value.Value, verifierPublicIdentityKey string) (value.Value, error) {
	return c.caller.Call(ctx, dispatcher.OpProveCertificate, value.NewObject().
		Set("certificate", certificate).
		Set("fieldsToReveal", fieldsToReveal).
		Set("verifierPublicIdentityKey", value.String(verifierPublicIdentityKey)))
}

// DirectTransaction are the arguments of SubmitDirectTransaction.
type DirectTransaction struct {
	ProtocolID        value.Value
	Transaction       value.Value
	SenderIdentityKey string
	Note              string
	Amount            int64
	DerivationPrefix  string
}

// SubmitDirectTransaction submits a transaction paying this wallet.
func (c *Client) SubmitDirectTransaction(ctx context.Context, tx DirectTransaction) (value.Value, error) {
	args := value.NewObject().
		Set("protocolID", tx.ProtocolID).
		Set("transaction", tx.Transaction).
		Set("senderIdentityKey", value.String(tx.SenderIdentityKey)).
		Set("note", value.String(tx.Note)).
		Set("amount", value.Int(tx.Amount))
	if tx.DerivationPrefix != "" {
		args.Set("derivationPrefix", value.String(tx.DerivationPrefix))
	}
	return c.caller.Call(ctx, dispatcher.OpSubmitDirectTransaction, args)
}

// PublicKeyQuery are the arguments of GetPublicKey. Zero fields take the wallet defaults.
type PublicKeyQuery struct {
	ProtocolID   value.Value
	KeyID        string
	Privileged   bool
	IdentityKey  bool
	Reason       string
	Counterparty string
	Description  string
}

// GetPublicKey returns a derived or identity public key.
func (c *Client) GetPublicKey(ctx context.Context, q PublicKeyQuery) (string, error) {
	args := value.NewObject()
	if !q.ProtocolID.IsNull() {
		args.Set("protocolID", q.ProtocolID)
	}
	setString(args, "keyID", q.KeyID)
	if q.Privileged {
		args.Set("privileged", value.Bool(true))
	}
	if q.IdentityKey {
		args.Set("identityKey", value.Bool(true))
	}
	setString(args, "reason", q.Reason)
	setString(args, "counterparty", q.Counterparty)
	setString(args, "description", q.Description)
	return c.str(ctx, dispatcher.OpGetPublicKey, args)
}

func setString(o *value.Object, key, s string) {
	if s != "" {
		o.Set(key, value.String(s))
	}
}

// GetVersion returns the wallet version.
func (c *Client) GetVersion(ctx context.Context) (string, error) {
	return c.str(ctx, dispatcher.OpGetVersion, nil)
}

// IsAuthenticated reports whether the wallet has an authenticated session.
func (c *Client) IsAuthenticated(ctx context.Context) (bool, error) {
	return c.boolean(ctx, dispatcher.OpIsAuthenticated, nil)
}

// WaitForAuthentication blocks until the user authenticates. It has no deadline of its own.
func (c *Client) WaitForAuthentication(ctx context.Context) (bool, error) {
	return c.boolean(ctx, dispatcher.OpWaitForAuthentication, nil)
}

// CreatePushDropScript builds a PushDrop locking script.
func (c *Client) CreatePushDropScript(ctx context.Context, fields, protocolID value.Value, keyID string) (string, error) {
	return c.str(ctx, dispatcher.OpCreatePushDropScript, value.NewObject().
		Set("fields", fields).
		Set("protocolID", protocolID).
		Set("keyID", value.String(keyID)))
}

// ParapetJSONQuery runs a query against a Parapet bridge.
func (c *Client) ParapetJSONQuery(ctx context.Context, resolvers value.Value, bridge string, request value.Value) (value.Value, error) {
	return c.caller.Call(ctx, dispatcher.OpParapetJSONQuery, value.NewObject().
		Set("resolvers", resolvers).
		Set("bridge", value.String(bridge)).
		Set("request", request))
}

// DownloadUHRPFile downloads a UHRP file and returns its bytes.
func (c *Client) DownloadUHRPFile(ctx context.Context, url string, bridgeportResolvers value.Value) ([]byte, error) {
	encoded, err := c.str(ctx, dispatcher.OpDownloadUHRPFile, value.NewObject().
		Set("URL", value.String(url)).
		Set("bridgeportResolvers", bridgeportResolvers))
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to decode download: %w", logPrefix, err)
	}
	return data, nil
}

// NewAuthriteRequest issues an authenticated JSON request through the wallet.
func (c *Client) NewAuthriteRequest(ctx context.Context, params value.Value, requestURL string, fetchConfig value.Value) (value.Value, error) {
	return c.caller.Call(ctx, dispatcher.OpNewAuthriteRequest, value.NewObject().
		Set("params", params).
		Set("requestUrl", value.String(requestURL)).
		Set("fetchConfig", fetchConfig))
}

// CreateOutputScriptFromPubKey returns a locking script for a derived public key.
func (c *Client) CreateOutputScriptFromPubKey(ctx context.Context, derivedPublicKey string) (string, error) {
	return c.str(ctx, dispatcher.OpCreateOutputScriptFromPubKey, value.NewObject().
		Set("derivedPublicKey", value.String(derivedPublicKey)))
}

// ConvertToBase64 base64-encodes UTF-8 text.
func ConvertToBase64(s string) string { return envelope.EncodeText(s) }

// GenerateSecureRandomBase64 returns byteCount random bytes, base64-encoded.
func GenerateSecureRandomBase64(byteCount int) (string, error) {
	return envelope.RandomBase64(byteCount)
}
