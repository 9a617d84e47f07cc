package avatar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"vrm-avatar/internal/animation"
	"vrm-avatar/internal/chat"
	"vrm-avatar/internal/motion"
	"vrm-avatar/internal/platform/metrics"
	"vrm-avatar/internal/rig"
	"vrm-avatar/internal/skeleton"
)

// DefaultIdlePrompt is requested by RequestIdle when no prompt is given.
const DefaultIdlePrompt = "Idle"

var (
	// ErrNoModel is returned when a session is created without a model or
	// skeleton and no default model is configured.
	ErrNoModel = errors.New("no model specified")

	// ErrMotionUnavailable is returned when no motion generator is configured.
	ErrMotionUnavailable = errors.New("motion generation not configured")

	// ErrChatUnavailable is returned when no chat relay is configured.
	ErrChatUnavailable = errors.New("chat not configured")
)

// MotionGenerator produces animation data for a prompt and target skeleton.
type MotionGenerator interface {
	Generate(ctx context.Context, req motion.Request) (*animation.AnimationData, error)
}

// ChatRelay forwards a chat message and returns the reply.
type ChatRelay interface {
	Send(ctx context.Context, msg chat.Message) (*chat.Reply, error)
}

// Options configures a Service. Only Loader is needed to create sessions from
// model names; Motion and Chat may be nil to disable those features.
type Options struct {
	Loader       skeleton.Loader
	Motion       MotionGenerator
	Chat         ChatRelay
	Log          *slog.Logger
	Metrics      *metrics.Metrics
	Clock        animation.Clock
	MaxDepth     int
	DefaultModel string
}

// Service owns session lifecycles and runs the animation pipeline: walk the
// skeleton, request a motion, install it, sample it.
type Service struct {
	repo Repository
	opts Options
	log  *slog.Logger

	// ctx bounds background requests; cancel aborts them on a forced shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewService returns a Service storing sessions in repo.
func NewService(repo Repository, opts Options) *Service {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = rig.DefaultMaxDepth
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{repo: repo, opts: opts, log: log, ctx: ctx, cancel: cancel}
}

// Repository returns the session repository.
func (s *Service) Repository() Repository { return s.repo }

// CreateSession loads a skeleton and registers a session for it. def takes
// precedence over model; with neither, the default model is loaded.
func (s *Service) CreateSession(model string, def *skeleton.Definition) (*Session, error) {
	var (
		sk  *skeleton.Skeleton
		err error
	)
	switch {
	case def != nil:
		sk, err = skeleton.Build(def)
		if model == "" {
			model = def.Name
		}
	default:
		if model == "" {
			model = s.opts.DefaultModel
		}
		if model == "" {
			return nil, ErrNoModel
		}
		if s.opts.Loader == nil {
			return nil, fmt.Errorf("%w: %s", skeleton.ErrModelNotFound, model)
		}
		sk, err = s.opts.Loader.Load(model)
	}
	if err != nil {
		return nil, err
	}

	sess := s.repo.Create(model, sk, animation.NewPlayer(s.opts.Clock))
	s.log.Info("session created", slog.String("session_id", string(sess.ID)), slog.String("model", model))
	return sess, nil
}

// GetSession returns the session for id.
func (s *Service) GetSession(id SessionID) (*Session, error) {
	return s.repo.Get(id)
}

// EndSession removes a session. In-flight requests for it are dropped when
// they complete.
func (s *Service) EndSession(id SessionID) error {
	if err := s.repo.Delete(id); err != nil {
		return err
	}
	s.log.Info("session ended", slog.String("session_id", string(id)))
	return nil
}

// Skeleton walks the session skeleton from the hips bone.
func (s *Service) Skeleton(id SessionID) (*SkeletonView, error) {
	sess, err := s.repo.Get(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	view, _, err := s.walkLocked(sess)
	return view, err
}

// walkLocked serializes the skeleton and builds a fresh name map.
// Caller must hold sess.mu.
func (s *Service) walkLocked(sess *Session) (*SkeletonView, *rig.NameMap, error) {
	root, err := sess.skeleton.RootBone()
	if err != nil {
		s.log.Error("avatar not ready", slog.String("session_id", string(sess.ID)), slog.String("error", err.Error()))
		return nil, nil, err
	}

	tree, names := rig.Walk(root, s.opts.MaxDepth)
	for _, c := range names.Collisions() {
		s.log.Warn("bone name collision",
			slog.String("session_id", string(sess.ID)),
			slog.String("generic", c.Generic),
			slog.String("previous", c.Previous),
			slog.String("current", c.Current))
	}

	view := &SkeletonView{Root: tree, Names: names.Map(), Collisions: names.Collisions()}
	if sess.skeleton.Root != nil {
		sess.skeleton.Root.RefreshWorld()
		view.WorldMatrix = sess.skeleton.Root.WorldMatrix()
	}
	return view, names, nil
}

// fetch prepares a motion request under the session lock, takes a sequence
// number, and performs the network call without holding the lock.
func (s *Service) fetch(ctx context.Context, sess *Session, prompt string) (uint64, *animation.AnimationData, *rig.NameMap, error) {
	if s.opts.Motion == nil {
		return 0, nil, nil, ErrMotionUnavailable
	}

	sess.mu.Lock()
	view, names, err := s.walkLocked(sess)
	if err != nil {
		sess.mu.Unlock()
		return 0, nil, nil, err
	}
	seq := sess.player.Begin()
	sess.mu.Unlock()

	req := motion.Request{
		Prompt: prompt,
		TargetSkeleton: motion.TargetSkeleton{
			WorldMatrix: view.WorldMatrix,
			Root:        view.Root,
		},
	}
	data, err := s.opts.Motion.Generate(ctx, req)
	if err == nil && data == nil {
		err = motion.ErrNoResult
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.ObserveMotion(err)
	}
	if err != nil {
		s.log.Error("motion request failed",
			slog.String("session_id", string(sess.ID)),
			slog.String("prompt", prompt),
			slog.Uint64("sequence", seq),
			slog.String("error", err.Error()))
		return seq, nil, nil, err
	}
	return seq, data, names, nil
}

// install makes data current unless a newer request already won.
func (s *Service) install(sess *Session, seq uint64, data *animation.AnimationData, names *rig.NameMap) AnimationResult {
	sess.mu.Lock()
	installed := sess.player.Install(seq, data, names)
	res := AnimationResult{Sequence: seq, Installed: installed, Duration: animation.ComputeDuration(data)}
	sess.mu.Unlock()

	if s.opts.Metrics != nil {
		s.opts.Metrics.ObserveInstall(installed)
	}
	if installed {
		s.log.Info("animation installed",
			slog.String("session_id", string(sess.ID)),
			slog.Uint64("sequence", seq),
			slog.Int("bones", len(data.Bones)),
			slog.Float64("duration", res.Duration))
	} else {
		s.log.Warn("stale animation discarded",
			slog.String("session_id", string(sess.ID)),
			slog.Uint64("sequence", seq))
	}
	return res
}

// RequestAnimation generates a motion for prompt and makes it the session's
// current animation. A response that arrives after a newer request's response
// is discarded and reported with Installed false.
func (s *Service) RequestAnimation(ctx context.Context, id SessionID, prompt string) (AnimationResult, error) {
	sess, err := s.repo.Get(id)
	if err != nil {
		return AnimationResult{}, err
	}
	seq, data, names, err := s.fetch(ctx, sess, prompt)
	if err != nil {
		return AnimationResult{Sequence: seq}, err
	}
	return s.install(sess, seq, data, names), nil
}

// RequestAnimationAsync runs RequestAnimation in the background. Errors are
// logged by the pipeline itself. It reports false, starting nothing, once
// Shutdown has begun.
func (s *Service) RequestAnimationAsync(id SessionID, prompt string) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.log.Warn("animation request rejected during shutdown",
			slog.String("session_id", string(id)),
			slog.String("prompt", prompt))
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		_, _ = s.RequestAnimation(s.ctx, id, prompt)
	}()
	return true
}

// Shutdown stops accepting background requests and waits for running ones.
// If ctx ends first the running requests are cancelled, left to unwind, and
// ctx.Err is returned.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

// RequestIdle generates the idle animation, stores it in the session's idle
// slot and plays it. The idle slot is not played again automatically.
func (s *Service) RequestIdle(ctx context.Context, id SessionID, prompt string) (AnimationResult, error) {
	if prompt == "" {
		prompt = DefaultIdlePrompt
	}
	sess, err := s.repo.Get(id)
	if err != nil {
		return AnimationResult{}, err
	}
	seq, data, names, err := s.fetch(ctx, sess, prompt)
	if err != nil {
		return AnimationResult{Sequence: seq}, err
	}

	sess.mu.Lock()
	sess.player.SetIdle(data, names)
	sess.mu.Unlock()
	return s.install(sess, seq, data, names), nil
}

// InstallAnimation plays caller supplied animation data on a session.
func (s *Service) InstallAnimation(id SessionID, data *animation.AnimationData) (AnimationResult, error) {
	if data == nil {
		return AnimationResult{}, errors.New("no animation data")
	}
	sess, err := s.repo.Get(id)
	if err != nil {
		return AnimationResult{}, err
	}

	sess.mu.Lock()
	_, names, err := s.walkLocked(sess)
	if err != nil {
		sess.mu.Unlock()
		return AnimationResult{}, err
	}
	seq := sess.player.Begin()
	sess.mu.Unlock()

	return s.install(sess, seq, data, names), nil
}

// Pose samples the session's animation and returns the resulting skeleton
// state. With at == nil the playback clock drives sampling (and looping);
// otherwise the animation is sampled at *at seconds, clamped to its duration.
func (s *Service) Pose(id SessionID, at *float64) (*Pose, error) {
	sess, err := s.repo.Get(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	target := skeletonRig{sk: sess.skeleton}
	var frame animation.Frame
	if at != nil {
		frame = sess.player.SampleAt(target, *at)
	} else {
		frame = sess.player.Tick(target)
	}
	if s.opts.Metrics != nil && frame.Applied > 0 {
		s.opts.Metrics.IncFramesSampled()
	}

	return &Pose{Frame: frame, Bones: snapshot(sess.skeleton)}, nil
}

func snapshot(sk *skeleton.Skeleton) []BonePose {
	slots := make(map[*skeleton.Bone]string)
	for _, slot := range sk.Slots() {
		slots[sk.HumanBone(slot)] = slot
	}

	bones := sk.Bones()
	out := make([]BonePose, 0, len(bones))
	for _, b := range bones {
		out = append(out, BonePose{
			Name:     b.Name,
			Humanoid: slots[b],
			Position: b.Position,
			Rotation: b.RotationArray(),
			World:    b.WorldMatrix(),
		})
	}
	return out
}

// Chat relays msg to the chat service. When the reply describes a motion and
// session is set, that motion is requested in the background, as the browser
// does after showing the reply.
func (s *Service) Chat(ctx context.Context, session SessionID, msg chat.Message) (*chat.Reply, error) {
	if s.opts.Chat == nil {
		return nil, ErrChatUnavailable
	}
	if session != "" {
		if _, err := s.repo.Get(session); err != nil {
			return nil, err
		}
	}

	reply, err := s.opts.Chat.Send(ctx, msg)
	if s.opts.Metrics != nil {
		s.opts.Metrics.ObserveChat(err)
	}
	if err != nil {
		s.log.Error("chat request failed", slog.String("error", err.Error()))
		return nil, err
	}

	if session != "" && reply.WantsMotion() {
		s.log.Debug("chat reply requests motion",
			slog.String("session_id", string(session)),
			slog.String("motion", reply.Motion))
		s.RequestAnimationAsync(session, reply.Motion)
	}
	return reply, nil
}
