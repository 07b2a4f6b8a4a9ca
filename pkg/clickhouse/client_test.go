package clickhouse

import (
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

func TestOptions(t *testing.T) {
	cfg := defaultClientConfig()
	cfg.Host, cfg.Database, cfg.User, cfg.Password = "ch", "optsignal", "u", "p"

	opts := cfg.options()
	if len(opts.Addr) != 1 || opts.Addr[0] != "ch:9000" {
		t.Fatalf("addr = %v", opts.Addr)
	}
	if opts.Auth.Database != "optsignal" || opts.Auth.Username != "u" || opts.Auth.Password != "p" {
		t.Fatalf("auth = %+v", opts.Auth)
	}
	if opts.Protocol != ch.Native || opts.Settings != nil {
		t.Fatalf("plain config: protocol %v settings %v", opts.Protocol, opts.Settings)
	}

	cfg.UseHTTP = true
	cfg.Port = 8123
	cfg.MaxExecTime = time.Minute
	cfg.AsyncInsert, cfg.WaitForAsync = true, true
	opts = cfg.options()
	if opts.Protocol != ch.HTTP || opts.Addr[0] != "ch:8123" {
		t.Fatalf("http: protocol %v addr %v", opts.Protocol, opts.Addr)
	}
	if opts.Settings["max_execution_time"] != 60 || opts.Settings["async_insert"] != 1 || opts.Settings["wait_for_async_insert"] != 1 {
		t.Fatalf("settings = %v", opts.Settings)
	}
}

func TestTimeoutsKeepDefaults(t *testing.T) {
	cfg := defaultClientConfig()
	WithTimeouts(0, 3*time.Second, 0)(cfg)
	if cfg.DialTimeout != 5*time.Second || cfg.ReadTimeout != 3*time.Second || cfg.WriteTimeout != 10*time.Second {
		t.Fatalf("timeouts = %v %v %v", cfg.DialTimeout, cfg.ReadTimeout, cfg.WriteTimeout)
	}
}

func TestNewClientRequiresHost(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Fatalf("expected error without host")
	}
}

func TestTable(t *testing.T) {
	c := NewClientFromDB(nil, "optsignal")
	if got := c.Table("bars_1h"); got != "optsignal.bars_1h" {
		t.Fatalf("Table = %q", got)
	}
}
