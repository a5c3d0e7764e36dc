package policy

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/hubscout/hubscout/internal/planner"
)

// Verdict is the safety assessment the validator hands to plan fusion.
// Reasons use stable markers so downstream arbitration can key on them.
type Verdict struct {
	OK      bool     `json:"ok"`
	Reasons []string `json:"reasons"`
}

// Reason markers emitted by the validator.
const (
	ReasonTrapRiskHigh   = "trap_risk_high"
	ReasonHostDisallowed = "host_disallowed"
)

// Has reports whether the verdict carries the given reason marker.
func (v Verdict) Has(reason string) bool {
	for _, r := range v.Reasons {
		if r == reason {
			return true
		}
	}
	return false
}

// Config tunes the seed validator. Zero values fall back to defaults.
type Config struct {
	Allow          []string `mapstructure:"allow"`
	Disallow       []string `mapstructure:"disallow"`
	MaxQueryParams int      `mapstructure:"max_query_params"`
	MaxPathRepeats int      `mapstructure:"max_path_repeats"`
	MaxURLLength   int      `mapstructure:"max_url_length"`
	TrapShare      float64  `mapstructure:"trap_share"` // fraction of risky seeds that trips the hard veto
}

// Validate ensures the thresholds are sane before use.
func (c Config) Validate() error {
	if c.MaxQueryParams < 0 {
		return fmt.Errorf("max_query_params cannot be negative")
	}
	if c.MaxPathRepeats < 0 {
		return fmt.Errorf("max_path_repeats cannot be negative")
	}
	if c.MaxURLLength < 0 {
		return fmt.Errorf("max_url_length cannot be negative")
	}
	if c.TrapShare < 0 || c.TrapShare > 1 {
		return fmt.Errorf("trap_share must be within [0,1]")
	}
	return nil
}

// Validator inspects a proposed seed queue for crawl traps before the
// plan is fused: calendar pagination, session-id query strings, query
// parameter explosions, repeated path segments and overlong URLs.
type Validator struct {
	allow          map[string]struct{}
	disallow       map[string]struct{}
	maxQueryParams int
	maxPathRepeats int
	maxURLLength   int
	trapShare      float64
}

var (
	calendarPath = regexp.MustCompile(`/(19|20)\d{2}/(0[1-9]|1[0-2])(/|$)`)
	sessionParam = regexp.MustCompile(`(?i)(^|[?&])(phpsessid|jsessionid|sessionid|sid|session)=`)
)

// NewValidator builds a Validator from configuration.
func NewValidator(cfg Config) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	v := &Validator{
		allow:          listToSet(cfg.Allow),
		disallow:       listToSet(cfg.Disallow),
		maxQueryParams: cfg.MaxQueryParams,
		maxPathRepeats: cfg.MaxPathRepeats,
		maxURLLength:   cfg.MaxURLLength,
		trapShare:      cfg.TrapShare,
	}
	if v.maxQueryParams == 0 {
		v.maxQueryParams = 6
	}
	if v.maxPathRepeats == 0 {
		v.maxPathRepeats = 3
	}
	if v.maxURLLength == 0 {
		v.maxURLLength = 512
	}
	if v.trapShare == 0 {
		v.trapShare = 0.3
	}
	return v, nil
}

// Evaluate assesses the seed queue of a plan. The verdict is advisory
// except for ReasonTrapRiskHigh, which fusion treats as a hard veto on
// the primary plan's seeds.
func (v *Validator) Evaluate(seeds []planner.Seed) Verdict {
	if len(seeds) == 0 {
		return Verdict{OK: true}
	}
	risky := 0
	reasons := map[string]struct{}{}
	for _, s := range seeds {
		if v.isDisallowed(s.URL) {
			reasons[ReasonHostDisallowed] = struct{}{}
		}
		if v.isTrappy(s.URL) {
			risky++
		}
	}
	if risky > 0 && float64(risky) >= v.trapShare*float64(len(seeds)) {
		reasons[ReasonTrapRiskHigh] = struct{}{}
	}
	out := Verdict{OK: len(reasons) == 0}
	for r := range reasons {
		out.Reasons = append(out.Reasons, r)
	}
	return out
}

func (v *Validator) isDisallowed(raw string) bool {
	host := normalizeHost(raw)
	if host == "" {
		return false
	}
	if _, ok := v.allow[host]; ok {
		return false
	}
	_, blocked := v.disallow[host]
	return blocked
}

func (v *Validator) isTrappy(raw string) bool {
	if len(raw) > v.maxURLLength {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return true
	}
	if sessionParam.MatchString(u.RawQuery) {
		return true
	}
	if len(u.Query()) > v.maxQueryParams {
		return true
	}
	if calendarPath.MatchString(u.Path) {
		return true
	}
	return repeatedSegment(u.Path, v.maxPathRepeats)
}

// repeatedSegment reports whether any path segment occurs at least limit
// times, which usually signals a symlink or rewrite loop.
func repeatedSegment(path string, limit int) bool {
	counts := map[string]int{}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		counts[seg]++
		if counts[seg] >= limit {
			return true
		}
	}
	return false
}

func listToSet(items []string) map[string]struct{} {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		host := normalizeHost(item)
		if host == "" {
			continue
		}
		set[host] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

func normalizeHost(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		if u, err := url.Parse(value); err == nil && u.Host != "" {
			value = u.Host
		}
	}
	value = strings.TrimPrefix(value, "www.")
	return value
}
