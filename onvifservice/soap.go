package onvifservice

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	soapContentType = "application/soap+xml; charset=utf-8"

	nsDevice = "http://www.onvif.org/ver10/device/wsdl"
	nsEvents = "http://www.onvif.org/ver10/events/wsdl"
	nsNotify = "http://docs.oasis-open.org/wsn/b-2"

	actionPullMessages = "http://www.onvif.org/ver10/events/wsdl/PullPointSubscription/PullMessagesRequest"
	actionRenew        = "http://docs.oasis-open.org/wsn/bw-2/SubscriptionManager/RenewRequest"
	actionUnsubscribe  = "http://docs.oasis-open.org/wsn/bw-2/SubscriptionManager/UnsubscribeRequest"
)

var errEmptyResponse = errors.New("empty soap response")

// credentials signs requests with a WS-Security UsernameToken. A zero value
// sends unauthenticated requests.
type credentials struct {
	username string
	password string
	// offset is the camera clock minus the local clock.
	offset time.Duration
}

func (c credentials) securityHeader() string {
	if c.username == "" {
		return ""
	}
	nonce := uuid.New()
	created := time.Now().Add(c.offset).UTC().Format("2006-01-02T15:04:05.000Z")

	h := sha1.New()
	h.Write(nonce[:])
	h.Write([]byte(created))
	h.Write([]byte(c.password))
	digest := base64.StdEncoding.EncodeToString(h.Sum(nil))

	return `<Security s:mustUnderstand="1" xmlns="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd">` +
		`<UsernameToken><Username>` + escape(c.username) + `</Username>` +
		`<Password Type="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordDigest">` + digest + `</Password>` +
		`<Nonce EncodingType="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-soap-message-security-1.0#Base64Binary">` +
		base64.StdEncoding.EncodeToString(nonce[:]) + `</Nonce>` +
		`<Created xmlns="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd">` + created + `</Created>` +
		`</UsernameToken></Security>`
}

// buildEnvelope wraps a request body. action and to are the WS-Addressing
// headers required by subscription managers; both may be empty.
func buildEnvelope(creds credentials, action, to, payload string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope" xmlns:a="http://www.w3.org/2005/08/addressing">`)
	b.WriteString(`<s:Header>`)
	if action != "" {
		b.WriteString(`<a:Action s:mustUnderstand="1">` + action + `</a:Action>`)
		b.WriteString(`<a:MessageID>urn:uuid:` + uuid.NewString() + `</a:MessageID>`)
	}
	if to != "" {
		b.WriteString(`<a:To s:mustUnderstand="1">` + escape(to) + `</a:To>`)
	}
	b.WriteString(creds.securityHeader())
	b.WriteString(`</s:Header><s:Body>`)
	b.WriteString(payload)
	b.WriteString(`</s:Body></s:Envelope>`)
	return b.String()
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// call posts one SOAP request and decodes the envelope. A SOAP fault in the
// response is returned as *FaultError whatever the HTTP status was.
func (c *Client) call(ctx context.Context, url, request string) (*body, error) {
	resp, err := c.HTTP.R().
		SetContext(ctx).
		SetHeader("Content-Type", soapContentType).
		SetBody(request).
		Post(url)
	if err != nil {
		return nil, err
	}

	raw := resp.Body()
	if len(raw) == 0 {
		if resp.IsError() {
			return nil, fmt.Errorf("%s: http %d", url, resp.StatusCode())
		}
		return nil, errEmptyResponse
	}

	var env envelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding response from %s (http %d): %w", url, resp.StatusCode(), err)
	}
	if f := env.Body.Fault; f != nil {
		return nil, &FaultError{
			Code:    strings.TrimSpace(f.Code),
			Subcode: strings.TrimSpace(f.Subcode),
			Reason:  strings.TrimSpace(f.Reason),
		}
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%s: http %d", url, resp.StatusCode())
	}
	return &env.Body, nil
}
