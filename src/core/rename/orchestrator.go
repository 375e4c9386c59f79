package rename

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pixname-server-go/src/configs"
	"pixname-server-go/src/core/backend"
	"pixname-server-go/src/core/engine"
	"pixname-server-go/src/core/errs"
	"pixname-server-go/src/core/image"
	"pixname-server-go/src/core/naming"
	"pixname-server-go/src/core/utils"
	"pixname-server-go/src/core/vault"
)

// State 重命名操作状态
type State string

const (
	StateIdle                State = "idle"
	StateRequesting          State = "requesting"
	StateSanitizing          State = "sanitizing"
	StateResolvingCollisions State = "resolving-collisions"
	StateRetryingOnce        State = "retrying-once"
	StateReady               State = "ready"
	StateRenaming            State = "renaming"
	StateDone                State = "done"
	StateFailed              State = "failed"
)

// SettingsSource 每次操作开始时重新读取设置，不做缓存
type SettingsSource func() configs.RenameSettings

// HistorySink 成功重命名后的记录回调，可为nil
type HistorySink func(oldPath, newPath string, profile backend.Profile, took time.Duration)

// StateListener 状态变迁回调，交互式前端用来展示进度，可为nil
type StateListener func(operationID string, state State)

// Result 一次重命名操作的结果
type Result struct {
	OperationID string
	OldPath     string
	NewPath     string
	FinalName   string
}

// Suggestions 交互模式下交给展示层的候选集
type Suggestions struct {
	OperationID string
	Candidates  []string
}

// Orchestrator 重命名编排器。
// 每次调用串行执行一个完整操作：预处理、请求、净化、冲突过滤、重命名。
type Orchestrator struct {
	logger       *utils.Logger
	vault        vault.Vault
	preprocessor *image.Preprocessor
	engine       *engine.Engine
	caps         backend.Capabilities
	settings     SettingsSource
	history      HistorySink
	listener     StateListener

	// 同一编排器上的操作不并行
	mu sync.Mutex
}

// NewOrchestrator 创建重命名编排器
func NewOrchestrator(logger *utils.Logger, v vault.Vault, eng *engine.Engine, caps backend.Capabilities, settings SettingsSource) *Orchestrator {
	return &Orchestrator{
		logger:       logger,
		vault:        v,
		preprocessor: image.NewPreprocessor(logger),
		engine:       eng,
		caps:         caps,
		settings:     settings,
	}
}

// SetHistorySink 设置重命名历史回调
func (o *Orchestrator) SetHistorySink(sink HistorySink) {
	o.history = sink
}

// SetStateListener 设置状态变迁回调
func (o *Orchestrator) SetStateListener(listener StateListener) {
	o.listener = listener
}

// operation 一次操作的上下文
type operation struct {
	id       string
	state    State
	path     string
	dir      string
	ext      string
	settings configs.RenameSettings
	profile  backend.Profile
	policy   engine.Policy
	date     naming.DatePolicy
	payload  image.EncodedPayload
}

// transition 状态变迁并记录日志
func (o *Orchestrator) transition(op *operation, next State) {
	op.state = next
	o.logger.Debug("重命名状态变迁", map[string]interface{}{
		"operation": op.id,
		"path":      op.path,
		"state":     string(next),
	})
	if o.listener != nil {
		o.listener(op.id, next)
	}
}

// fail 进入失败吸收态并返回错误
func (o *Orchestrator) fail(op *operation, err error) error {
	o.transition(op, StateFailed)
	o.logger.Error("重命名操作失败", map[string]interface{}{
		"operation": op.id,
		"path":      op.path,
		"kind":      string(errs.KindOf(err)),
		"error":     err.Error(),
	})
	return err
}

// RenameWithBestSuggestion 自动模式：使用首个可用候选直接重命名
func (o *Orchestrator) RenameWithBestSuggestion(ctx context.Context, path string) (*Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	op, available, err := o.collectCandidates(ctx, path)
	if err != nil {
		return nil, err
	}

	if len(available) == 0 {
		return nil, o.fail(op, errs.New(errs.KindCollision, "rename",
			"无法生成不冲突的文件名"))
	}

	o.transition(op, StateReady)
	return o.performRename(op, available[0])
}

// SuggestNames 交互模式第一步：返回过滤后的候选集（可能为空），
// 由展示层让用户选择或自行输入。
func (o *Orchestrator) SuggestNames(ctx context.Context, path string) (*Suggestions, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	op, available, err := o.collectCandidates(ctx, path)
	if err != nil {
		return nil, err
	}

	o.transition(op, StateReady)
	return &Suggestions{OperationID: op.id, Candidates: available}, nil
}

// SuggestForUpload 对不在笔记库中的图片数据生成候选名。
// 没有目标目录，不做冲突过滤，只走预处理、请求与净化。
func (o *Orchestrator) SuggestForUpload(ctx context.Context, data []byte, ext string) (*Suggestions, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	op := &operation{
		id:    uuid.New().String(),
		state: StateIdle,
		path:  "(upload)",
		ext:   ext,
	}

	settings := o.settings()
	settings.Normalize()
	op.settings = settings
	op.policy = engine.PolicyFromSettings(settings)

	profile, err := backend.ResolveProfile(settings, o.caps)
	if err != nil {
		return nil, o.fail(op, err)
	}
	op.profile = profile

	payload, err := o.preprocessor.Preprocess(image.ImageAsset{
		Path:      op.path,
		Data:      data,
		Extension: ext,
	})
	if err != nil {
		return nil, o.fail(op, err)
	}
	op.payload = payload

	o.transition(op, StateRequesting)
	captions, err := o.engine.RequestCaptions(ctx, op.payload, op.profile, op.policy)
	if err != nil {
		return nil, o.fail(op, err)
	}

	o.transition(op, StateSanitizing)
	policy := naming.Policy{
		CaseStyle:   settings.CaseStyle,
		AllowSpaces: settings.AllowSpaces,
	}
	candidates := make([]string, 0, len(captions))
	for _, caption := range captions {
		name, err := naming.Sanitize(caption, policy)
		if errors.Is(err, naming.ErrEmptyName) {
			continue
		}
		if err != nil {
			return nil, o.fail(op, err)
		}
		candidates = append(candidates, name)
	}

	o.transition(op, StateReady)
	return &Suggestions{OperationID: op.id, Candidates: candidates}, nil
}

// ApplyName 交互模式第二步：用户最终确定的文本独立重新校验后执行重命名
func (o *Orchestrator) ApplyName(ctx context.Context, path, chosen string) (*Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	op, err := o.beginOperation(path)
	if err != nil {
		return nil, err
	}

	sanitized, err := naming.Sanitize(chosen, naming.Policy{
		CaseStyle:   op.settings.CaseStyle,
		AllowSpaces: op.settings.AllowSpaces,
	})
	if err != nil {
		return nil, o.fail(op, errs.Wrap(errs.KindCollision, "rename", "输入的名字不可用", err))
	}

	o.transition(op, StateResolvingCollisions)
	available, err := naming.FilterAvailable(ctx, o.vault, []string{sanitized},
		op.dir, op.ext, op.date, op.path)
	if err != nil {
		return nil, o.fail(op, err)
	}
	if len(available) == 0 {
		return nil, o.fail(op, errs.New(errs.KindConflict, "rename",
			fmt.Sprintf("名字已被占用: %s", sanitized)))
	}

	o.transition(op, StateReady)
	return o.performRename(op, sanitized)
}

// beginOperation 读取设置与文件元信息，构造操作上下文
func (o *Orchestrator) beginOperation(path string) (*operation, error) {
	op := &operation{
		id:    uuid.New().String(),
		state: StateIdle,
		path:  path,
		dir:   filepath.Dir(path),
		ext:   strings.TrimPrefix(filepath.Ext(path), "."),
	}

	// 设置每次操作重新加载，期间的修改立即生效
	settings := o.settings()
	settings.Normalize()
	op.settings = settings
	op.policy = engine.PolicyFromSettings(settings)

	profile, err := backend.ResolveProfile(settings, o.caps)
	if err != nil {
		return op, o.fail(op, err)
	}
	op.profile = profile

	info, err := o.vault.Stat(path)
	if err != nil {
		// 创建时间拿不到时省略日期前缀，不中断操作
		o.logger.Warn("获取文件信息失败，日期前缀将被省略", map[string]interface{}{
			"operation": op.id,
			"path":      path,
			"error":     err.Error(),
		})
		op.date = naming.DatePolicy{Enabled: settings.DatePrefix}
	} else {
		op.date = naming.DatePolicy{
			Enabled:      settings.DatePrefix,
			CreatedAt:    info.CreatedAt,
			HasCreatedAt: info.HasCreatedAt,
		}
	}

	return op, nil
}

// collectCandidates 公共流水线：预处理、请求、净化、冲突过滤，
// 全部冲突时追加一轮请求后再过滤。
func (o *Orchestrator) collectCandidates(ctx context.Context, path string) (*operation, []string, error) {
	op, err := o.beginOperation(path)
	if err != nil {
		return op, nil, err
	}

	data, err := o.vault.ReadBytes(path)
	if err != nil {
		return op, nil, o.fail(op, err)
	}

	payload, err := o.preprocessor.Preprocess(image.ImageAsset{
		Path:      path,
		Data:      data,
		Extension: op.ext,
		CreatedAt: op.date.CreatedAt,
	})
	if err != nil {
		return op, nil, o.fail(op, err)
	}
	op.payload = payload

	available, err := o.requestRound(ctx, op, StateRequesting)
	if err != nil {
		return op, nil, o.fail(op, err)
	}

	if len(available) == 0 {
		// 全部冲突时恰好追加一轮请求，仍为空则由调用方定夺
		available, err = o.requestRound(ctx, op, StateRetryingOnce)
		if err != nil {
			return op, nil, o.fail(op, err)
		}
	}

	return op, available, nil
}

// requestRound 一轮完整的请求、净化与冲突过滤
func (o *Orchestrator) requestRound(ctx context.Context, op *operation, entry State) ([]string, error) {
	o.transition(op, entry)
	captions, err := o.engine.RequestCaptions(ctx, op.payload, op.profile, op.policy)
	if err != nil {
		return nil, err
	}

	o.transition(op, StateSanitizing)
	policy := naming.Policy{
		CaseStyle:   op.settings.CaseStyle,
		AllowSpaces: op.settings.AllowSpaces,
	}
	sanitized := make([]string, 0, len(captions))
	for _, caption := range captions {
		name, err := naming.Sanitize(caption, policy)
		if errors.Is(err, naming.ErrEmptyName) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sanitized = append(sanitized, name)
	}

	o.transition(op, StateResolvingCollisions)
	return naming.FilterAvailable(ctx, o.vault, sanitized, op.dir, op.ext, op.date, op.path)
}

// performRename 执行最终重命名，该调用对每个确定的名字只尝试一次
func (o *Orchestrator) performRename(op *operation, name string) (*Result, error) {
	o.transition(op, StateRenaming)
	start := time.Now()

	newPath := naming.TargetPath(op.dir, name, op.ext, op.date)
	if err := o.vault.RenameAndUpdateReferences(op.path, newPath); err != nil {
		// 并发修改导致的最终时刻冲突：不重命名，向用户报告
		return nil, o.fail(op, err)
	}

	o.transition(op, StateDone)
	took := time.Since(start)
	o.logger.Info("重命名完成", map[string]interface{}{
		"operation": op.id,
		"old":       op.path,
		"new":       newPath,
		"took_ms":   took.Milliseconds(),
	})

	if o.history != nil {
		o.history(op.path, newPath, op.profile, took)
	}

	return &Result{
		OperationID: op.id,
		OldPath:     op.path,
		NewPath:     newPath,
		FinalName:   filepath.Base(newPath),
	}, nil
}
