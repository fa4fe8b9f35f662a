package upload

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wedding-site/internal/apperr"
)

type fakePresigner struct {
	calls []string
	ttl   time.Duration
	err   error
}

func (f *fakePresigner) PresignPut(ctx context.Context, key string, ttl time.Duration) (*url.URL, error) {
	f.calls = append(f.calls, key)
	f.ttl = ttl
	if f.err != nil {
		return nil, f.err
	}
	return url.Parse("https://storage.example.com/wedding-media/" + key + "?X-Amz-Expires=7200&X-Amz-Signature=deadbeef")
}

func newTestBroker(p Presigner) *Broker {
	return NewBroker(NewJWTAuthenticator(testSecret), p, "wedding-media",
		WithBrokerClock(func() time.Time { return time.UnixMilli(1717000000000) }),
		WithIDGenerator(func() string { return "0000-1111" }),
	)
}

func TestBroker_CreateUploadTarget(t *testing.T) {
	p := &fakePresigner{}
	b := newTestBroker(p)

	target, err := b.CreateUploadTarget(context.Background(),
		signToken(t, testSecret, time.Now().Add(time.Hour)),
		TargetRequest{Folder: "posts", GuestID: "guest-1", FileName: " party.PNG "})
	require.NoError(t, err)

	assert.Equal(t, "wedding-media", target.Bucket)
	assert.Equal(t, "posts/guest-1/1717000000000-0000-1111.png", target.Path)
	assert.Equal(t, "deadbeef", target.Token)
	assert.Contains(t, target.SignedURL, target.Path)
	assert.Equal(t, DefaultURLTTL, p.ttl)
}

func TestBroker_AuthBeforeValidation(t *testing.T) {
	p := &fakePresigner{}
	b := newTestBroker(p)

	expired := signToken(t, testSecret, time.Now().Add(-time.Hour))
	_, err := b.CreateUploadTarget(context.Background(), expired, TargetRequest{})
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
	assert.Equal(t, MsgInvalidToken, apperr.PublicMessage(err, ""))
	assert.Empty(t, p.calls)

	_, err = b.CreateUploadTarget(context.Background(), "", TargetRequest{FileName: "a.jpg"})
	assert.Equal(t, MsgMissingAuth, apperr.PublicMessage(err, ""))
	assert.Empty(t, p.calls)
}

func TestBroker_Errors(t *testing.T) {
	token := signToken(t, testSecret, time.Now().Add(time.Hour))

	p := &fakePresigner{}
	_, err := newTestBroker(p).CreateUploadTarget(context.Background(), token, TargetRequest{})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, MsgFileNameRequired, apperr.PublicMessage(err, ""))
	assert.Empty(t, p.calls)

	p = &fakePresigner{err: errors.New("bucket missing")}
	_, err = newTestBroker(p).CreateUploadTarget(context.Background(), token, TargetRequest{FileName: "a.jpg"})
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.Equal(t, MsgSignFailed, apperr.PublicMessage(err, ""))
}

func TestBroker_BlankFileName(t *testing.T) {
	token := signToken(t, testSecret, time.Now().Add(time.Hour))

	p := &fakePresigner{}
	target, err := newTestBroker(p).CreateUploadTarget(context.Background(), token,
		TargetRequest{Folder: "stories", GuestID: "guest-1", FileName: "  "})
	require.NoError(t, err)
	assert.Equal(t, "stories/guest-1/1717000000000-0000-1111", target.Path)
	assert.Equal(t, []string{target.Path}, p.calls)
}
