package preload

import (
	"testing"
	"time"

	"github.com/runnerr0/foresight/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestHostLimiter(t *testing.T) {
	clock := &fakeClock{t: refNow}
	l := NewHostLimiter(60, 2, clock.Now)

	assert.True(t, l.Allow("a.com"))
	assert.True(t, l.Allow("a.com"))
	assert.False(t, l.Allow("a.com"))
	assert.True(t, l.Allow("b.com"), "hosts are limited independently")

	clock.Advance(time.Second)
	assert.True(t, l.Allow("a.com"))
}

func TestHostLimiter_Unlimited(t *testing.T) {
	l := NewHostLimiter(0, 0, nil)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("a.com"))
	}
}

func TestDenylist(t *testing.T) {
	d := NewDenylist([]string{"Chase.com", " .irs.gov ", ""})

	assert.True(t, d.Blocks("chase.com"))
	assert.True(t, d.Blocks("secure.CHASE.com"))
	assert.True(t, d.Blocks("www.irs.gov."))
	assert.False(t, d.Blocks("notchase.com"))
	assert.False(t, d.Blocks("chase.com.evil.net"))
	assert.False(t, Denylist{}.Blocks("chase.com"))
}

func TestWarmableHost(t *testing.T) {
	assert.Equal(t, "a.com", warmableHost("https://A.com:8443/x"))
	assert.Equal(t, "a.com", warmableHost("http://a.com"))
	assert.Empty(t, warmableHost("ftp://a.com"))
	assert.Empty(t, warmableHost("about:blank"))
	assert.Empty(t, warmableHost("://bad"))
}

func TestSettings(t *testing.T) {
	assert.Equal(t, 3, Settings{MaxConnections: 10}.connectionLimit())
	assert.Equal(t, 2, Settings{MaxConnections: 2}.connectionLimit())
	assert.Equal(t, 0, Settings{MaxConnections: -1}.connectionLimit())

	cfg := config.DefaultConfig().Preloading
	s := SettingsFromConfig(cfg)
	assert.Equal(t, DefaultSettings(), s)

	cfg.Metered = true
	cfg.Mobile = true
	sensor := NewStaticSensor(cfg)
	assert.True(t, sensor.Status.Metered)
	assert.True(t, sensor.Status.Mobile)
	assert.True(t, sensor.Status.Unrestricted)
}
