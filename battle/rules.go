package battle

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"petbattle/protocol"
)

// AttackKind 远程攻击种类
type AttackKind string

const (
	Fireball  AttackKind = "fireball"
	Arrow     AttackKind = "arrow"
	Lightning AttackKind = "lightning"
	Ice       AttackKind = "ice"
)

// EffectKind 状态效果种类
type EffectKind string

const (
	Burn  EffectKind = "burn"
	Shock EffectKind = "shock"
	Slow  EffectKind = "slow"
)

// Effect 命中后附加的状态效果参数
type Effect struct {
	Kind       EffectKind
	Duration   time.Duration
	TickDamage int     // 每秒伤害，slow 为 0
	SlowFactor float64 // 移速倍率，非 slow 为 1.0
}

// AttackRule 单种攻击的静态规则
type AttackRule struct {
	Kind        AttackKind
	BaseDamage  int
	Cooldown    time.Duration
	Effect      *Effect
	Description string
}

// Payload 按规则构造发往目标的攻击负载
func (r AttackRule) Payload(targetID string) protocol.AttackData {
	a := protocol.AttackData{
		TargetID:   targetID,
		AttackType: string(r.Kind),
		Damage:     r.BaseDamage,
	}
	if r.Effect == nil {
		return a
	}
	secs := r.Effect.Duration.Seconds()
	switch r.Effect.Kind {
	case Burn:
		a.BurnDuration = protocol.Ptr(secs)
		a.BurnDamage = protocol.Ptr(r.Effect.TickDamage)
	case Shock:
		a.ShockDuration = protocol.Ptr(secs)
		a.ShockDamage = protocol.Ptr(r.Effect.TickDamage)
	case Slow:
		a.SlowDuration = protocol.Ptr(secs)
		a.SlowFactor = protocol.Ptr(r.Effect.SlowFactor)
	}
	return a
}

// RuleTable 攻击规则表，按种类索引
type RuleTable map[AttackKind]AttackRule

// Get 查询规则
func (t RuleTable) Get(kind AttackKind) (AttackRule, bool) {
	r, ok := t[kind]
	return r, ok
}

// Kinds 返回按名称排序的攻击种类
func (t RuleTable) Kinds() []AttackKind {
	kinds := make([]AttackKind, 0, len(t))
	for k := range t {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// --- YAML loading ---

//go:embed rules.yaml
var defaultRulesYAML []byte

type ruleFile struct {
	Attacks []ruleEntry `yaml:"attacks"`
}

type ruleEntry struct {
	Kind            string      `yaml:"kind"`
	Damage          int         `yaml:"damage"`
	CooldownSeconds float64     `yaml:"cooldown_seconds"`
	Description     string      `yaml:"description"`
	Effect          *effectSpec `yaml:"effect"`
}

type effectSpec struct {
	Kind            string  `yaml:"kind"`
	DurationSeconds float64 `yaml:"duration_seconds"`
	TickDamage      int     `yaml:"tick_damage"`
	SlowFactor      float64 `yaml:"slow_factor"`
}

var errEmptyTable = errors.New("no attacks defined")

// DefaultRules 返回内置规则表
func DefaultRules() RuleTable {
	t, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("battle: embedded rules: %v", err))
	}
	return t
}

// LoadRules 从 YAML 文件读取规则表；path 为空时使用内置表
func LoadRules(path string) (RuleTable, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}
	t, err := ParseRules(raw)
	if err != nil {
		return nil, fmt.Errorf("rules: parse %s: %w", path, err)
	}
	return t, nil
}

// ParseRules 解析并校验规则表
func ParseRules(raw []byte) (RuleTable, error) {
	var f ruleFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	if len(f.Attacks) == 0 {
		return nil, errEmptyTable
	}
	t := make(RuleTable, len(f.Attacks))
	for _, a := range f.Attacks {
		if a.Kind == "" {
			return nil, errors.New("attack without kind")
		}
		kind := AttackKind(a.Kind)
		if _, dup := t[kind]; dup {
			return nil, fmt.Errorf("duplicate attack %q", a.Kind)
		}
		if a.Damage < 0 || a.CooldownSeconds < 0 {
			return nil, fmt.Errorf("attack %q: negative damage or cooldown", a.Kind)
		}
		rule := AttackRule{
			Kind:        kind,
			BaseDamage:  a.Damage,
			Cooldown:    seconds(a.CooldownSeconds),
			Description: a.Description,
		}
		if a.Effect != nil {
			eff, err := a.Effect.effect()
			if err != nil {
				return nil, fmt.Errorf("attack %q: %w", a.Kind, err)
			}
			rule.Effect = &eff
		}
		t[kind] = rule
	}
	return t, nil
}

func (s *effectSpec) effect() (Effect, error) {
	if s.DurationSeconds <= 0 {
		return Effect{}, errors.New("effect duration must be positive")
	}
	e := Effect{
		Kind:       EffectKind(s.Kind),
		Duration:   seconds(s.DurationSeconds),
		SlowFactor: 1.0,
	}
	switch e.Kind {
	case Burn, Shock:
		if s.TickDamage <= 0 {
			return Effect{}, fmt.Errorf("%s needs a positive tick_damage", s.Kind)
		}
		e.TickDamage = s.TickDamage
	case Slow:
		if s.SlowFactor <= 0 || s.SlowFactor > 1 {
			return Effect{}, fmt.Errorf("slow_factor %v out of (0, 1]", s.SlowFactor)
		}
		e.SlowFactor = s.SlowFactor
	default:
		return Effect{}, fmt.Errorf("unknown effect kind %q", s.Kind)
	}
	return e, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
