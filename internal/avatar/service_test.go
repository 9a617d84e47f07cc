package avatar

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vrm-avatar/internal/animation"
	"vrm-avatar/internal/chat"
	"vrm-avatar/internal/motion"
	"vrm-avatar/internal/platform/logger"
	"vrm-avatar/internal/skeleton"
)

type fakeMotion struct {
	mu       sync.Mutex
	requests []motion.Request
	byPrompt map[string]*animation.AnimationData
	gates    map[string]chan struct{}
	called   chan string
	err      error
}

func (f *fakeMotion) Generate(ctx context.Context, req motion.Request) (*animation.AnimationData, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	gate := f.gates[req.Prompt]
	data := f.byPrompt[req.Prompt]
	f.mu.Unlock()

	if f.called != nil {
		f.called <- req.Prompt
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if data == nil {
		data = hipsAnimation()
	}
	return data, nil
}

func (f *fakeMotion) prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.requests))
	for _, r := range f.requests {
		out = append(out, r.Prompt)
	}
	return out
}

type fakeChat struct {
	reply *chat.Reply
	err   error
	got   chat.Message
}

func (f *fakeChat) Send(ctx context.Context, msg chat.Message) (*chat.Reply, error) {
	f.got = msg
	return f.reply, f.err
}

// twoBoneDefinition is a scene root holding Hips -> Spine.
func twoBoneDefinition() *skeleton.Definition {
	return &skeleton.Definition{
		Name: "Scene",
		Children: []*skeleton.Definition{{
			Name:     "Hips",
			Humanoid: "hips",
			Position: &[3]float64{0, 1, 0},
			Children: []*skeleton.Definition{{Name: "Spine", Humanoid: "spine", Position: &[3]float64{0, 0.2, 0}}},
		}},
	}
}

func hipsAnimation() *animation.AnimationData {
	return &animation.AnimationData{Bones: map[string]animation.BoneChannels{
		"mixamorigHips": {Position: animation.Channel[animation.Vec3]{
			{Time: 0, Value: animation.Vec3{0, 0, 0}},
			{Time: 1, Value: animation.Vec3{0, 1, 0}},
		}},
	}}
}

func newTestService(t *testing.T, m MotionGenerator, c ChatRelay) *Service {
	t.Helper()
	return NewService(NewInMemoryRepository(), Options{
		Motion: m,
		Chat:   c,
		Log:    logger.Discard(),
	})
}

func bonePose(t *testing.T, p *Pose, name string) BonePose {
	t.Helper()
	for _, b := range p.Bones {
		if b.Name == name {
			return b
		}
	}
	t.Fatalf("bone %q not in pose", name)
	return BonePose{}
}

func TestService_two_bone_scenario(t *testing.T) {
	svc := newTestService(t, nil, nil)
	sess, err := svc.CreateSession("", twoBoneDefinition())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	res, err := svc.InstallAnimation(sess.ID, hipsAnimation())
	if err != nil || !res.Installed || res.Duration != 1 {
		t.Fatalf("InstallAnimation: %+v, %v", res, err)
	}

	at := 0.5
	pose, err := svc.Pose(sess.ID, &at)
	if err != nil {
		t.Fatalf("Pose: %v", err)
	}
	if got := bonePose(t, pose, "Hips").Position; got != [3]float64{0, 0, 0} {
		t.Errorf("t=0.5: hips position %v, want [0 0 0]", got)
	}

	at = 1.5
	pose, _ = svc.Pose(sess.ID, &at)
	if pose.Time != 1 {
		t.Errorf("expected time clamped to 1, got %v", pose.Time)
	}
	hips := bonePose(t, pose, "Hips")
	if hips.Position != [3]float64{0, 1, 0} {
		t.Errorf("t=1.5: hips position %v, want [0 1 0]", hips.Position)
	}
	if hips.Humanoid != "hips" {
		t.Errorf("expected humanoid slot, got %q", hips.Humanoid)
	}
	// world matrices recomputed after sampling
	if spine := bonePose(t, pose, "Spine"); spine.World[13] < 1.19 || spine.World[13] > 1.21 {
		t.Errorf("spine world y: got %v, want 1.2", spine.World[13])
	}
}

func TestService_RequestAnimation(t *testing.T) {
	m := &fakeMotion{}
	svc := newTestService(t, m, nil)
	sess, _ := svc.CreateSession("", twoBoneDefinition())

	res, err := svc.RequestAnimation(context.Background(), sess.ID, "wave")
	if err != nil {
		t.Fatalf("RequestAnimation: %v", err)
	}
	if !res.Installed || res.Sequence != 1 {
		t.Errorf("unexpected result %+v", res)
	}

	req := m.requests[0]
	if req.Prompt != "wave" || req.TargetSkeleton.Root == nil || req.TargetSkeleton.Root.Name != "mixamorigHips" {
		t.Fatalf("unexpected request %+v", req)
	}
	if len(req.TargetSkeleton.Root.Children) != 1 || req.TargetSkeleton.Root.Children[0].Name != "mixamorigSpine" {
		t.Errorf("unexpected bone tree %+v", req.TargetSkeleton.Root)
	}
	if req.TargetSkeleton.WorldMatrix[0] != 1 || req.TargetSkeleton.WorldMatrix[15] != 1 {
		t.Errorf("expected identity model matrix, got %v", req.TargetSkeleton.WorldMatrix)
	}
}

func TestService_stale_response_discarded(t *testing.T) {
	first := hipsAnimation()
	second := hipsAnimation()
	m := &fakeMotion{
		byPrompt: map[string]*animation.AnimationData{"first": first, "second": second},
		gates:    map[string]chan struct{}{"first": make(chan struct{}), "second": make(chan struct{})},
		called:   make(chan string, 2),
	}
	svc := newTestService(t, m, nil)
	sess, _ := svc.CreateSession("", twoBoneDefinition())

	results := make(chan AnimationResult, 2)
	go func() {
		res, _ := svc.RequestAnimation(context.Background(), sess.ID, "first")
		results <- res
	}()
	<-m.called // first has its sequence number
	go func() {
		res, _ := svc.RequestAnimation(context.Background(), sess.ID, "second")
		results <- res
	}()
	<-m.called

	close(m.gates["second"])
	if res := <-results; !res.Installed || res.Sequence != 2 {
		t.Fatalf("second response should install, got %+v", res)
	}
	close(m.gates["first"])
	if res := <-results; res.Installed || res.Sequence != 1 {
		t.Fatalf("late first response should be discarded, got %+v", res)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.player.Current() != second {
		t.Error("current animation should be the second response")
	}
}

func TestService_RequestAnimation_errors(t *testing.T) {
	t.Run("missing root bone", func(t *testing.T) {
		m := &fakeMotion{}
		svc := newTestService(t, m, nil)
		sess, _ := svc.CreateSession("", &skeleton.Definition{Name: "Scene", Children: []*skeleton.Definition{{Name: "Hips"}}})

		_, err := svc.RequestAnimation(context.Background(), sess.ID, "wave")
		if !errors.Is(err, skeleton.ErrNoRootBone) {
			t.Errorf("expected ErrNoRootBone, got %v", err)
		}
		if len(m.prompts()) != 0 {
			t.Error("motion service must not be called")
		}
	})

	t.Run("upstream failure keeps current animation", func(t *testing.T) {
		m := &fakeMotion{}
		svc := newTestService(t, m, nil)
		sess, _ := svc.CreateSession("", twoBoneDefinition())
		svc.RequestAnimation(context.Background(), sess.ID, "wave")
		current := sess.player.Current()

		m.err = &motion.StatusError{Code: 500, Status: "Internal Server Error"}
		_, err := svc.RequestAnimation(context.Background(), sess.ID, "jump")
		if !errors.Is(err, motion.ErrUpstream) {
			t.Errorf("expected upstream error, got %v", err)
		}
		if sess.player.Current() != current {
			t.Error("failed request replaced the current animation")
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		svc := newTestService(t, &fakeMotion{}, nil)
		if _, err := svc.RequestAnimation(context.Background(), "nope", "wave"); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("no generator", func(t *testing.T) {
		svc := newTestService(t, nil, nil)
		sess, _ := svc.CreateSession("", twoBoneDefinition())
		if _, err := svc.RequestAnimation(context.Background(), sess.ID, "wave"); !errors.Is(err, ErrMotionUnavailable) {
			t.Errorf("expected ErrMotionUnavailable, got %v", err)
		}
	})
}

func TestService_RequestIdle(t *testing.T) {
	m := &fakeMotion{}
	svc := newTestService(t, m, nil)
	sess, _ := svc.CreateSession("", twoBoneDefinition())

	res, err := svc.RequestIdle(context.Background(), sess.ID, "")
	if err != nil || !res.Installed {
		t.Fatalf("RequestIdle: %+v %v", res, err)
	}
	if p := m.prompts(); len(p) != 1 || p[0] != DefaultIdlePrompt {
		t.Errorf("expected idle prompt, got %v", p)
	}
	if !sess.player.HasIdle() {
		t.Error("idle slot should be filled")
	}
}

func TestService_Chat_triggers_motion(t *testing.T) {
	m := &fakeMotion{}
	c := &fakeChat{reply: &chat.Reply{MyNameIs: "Aiko", Answer: "hi!", Motion: "wave hand"}}
	svc := newTestService(t, m, c)
	sess, _ := svc.CreateSession("", twoBoneDefinition())

	reply, err := svc.Chat(context.Background(), sess.ID, chat.Message{Answer: "hello", MyNameIs: "Bob"})
	if err != nil || reply.Answer != "hi!" {
		t.Fatalf("Chat: %+v %v", reply, err)
	}
	if err := svc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if p := m.prompts(); len(p) != 1 || p[0] != "wave hand" {
		t.Errorf("expected motion request for reply, got %v", p)
	}
	if sess.player.Sequence() != 1 {
		t.Errorf("expected animation installed, sequence %d", sess.player.Sequence())
	}
}

func TestService_Chat_short_motion_ignored(t *testing.T) {
	m := &fakeMotion{}
	c := &fakeChat{reply: &chat.Reply{Answer: "ok", Motion: "no"}}
	svc := newTestService(t, m, c)
	sess, _ := svc.CreateSession("", twoBoneDefinition())

	if _, err := svc.Chat(context.Background(), sess.ID, chat.Message{}); err != nil {
		t.Fatal(err)
	}
	if err := svc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if len(m.prompts()) != 0 {
		t.Error("short motion should not be requested")
	}

	c.err = chat.ErrUpstream
	if _, err := svc.Chat(context.Background(), "", chat.Message{}); !errors.Is(err, chat.ErrUpstream) {
		t.Errorf("expected upstream error, got %v", err)
	}
}

func TestService_Pose_ticks_player(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	svc := NewService(NewInMemoryRepository(), Options{Log: logger.Discard(), Clock: clock})
	sess, _ := svc.CreateSession("", twoBoneDefinition())

	pose, err := svc.Pose(sess.ID, nil)
	if err != nil || pose.State != animation.Stopped {
		t.Fatalf("expected stopped pose, got %+v %v", pose, err)
	}

	svc.InstallAnimation(sess.ID, hipsAnimation())
	clock.now = clock.now.Add(1200 * time.Millisecond)
	pose, _ = svc.Pose(sess.ID, nil)
	if pose.Time != 1 || bonePose(t, pose, "Hips").Position != [3]float64{0, 1, 0} {
		t.Errorf("unexpected pose %+v", pose.Frame)
	}
	sess.mu.Lock()
	state := sess.player.State()
	sess.mu.Unlock()
	if state != animation.Looping {
		t.Errorf("expected looping, got %v", state)
	}
}

func TestService_CreateSession_loader(t *testing.T) {
	svc := NewService(NewInMemoryRepository(), Options{Log: logger.Discard(), Loader: skeleton.FileLoader{Dir: t.TempDir()}})
	if _, err := svc.CreateSession("", nil); !errors.Is(err, ErrNoModel) {
		t.Errorf("expected ErrNoModel, got %v", err)
	}
	if _, err := svc.CreateSession("missing.vrm", nil); !errors.Is(err, skeleton.ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound, got %v", err)
	}
}

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

func TestService_Shutdown_rejects_new_requests(t *testing.T) {
	fm := &fakeMotion{
		gates:  map[string]chan struct{}{"slow": make(chan struct{})},
		called: make(chan string, 2),
	}
	svc := newTestService(t, fm, nil)
	sess, err := svc.CreateSession("", twoBoneDefinition())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if !svc.RequestAnimationAsync(sess.ID, "slow") {
		t.Fatal("request before shutdown should be accepted")
	}
	<-fm.called

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := svc.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error while a request is running, got %v", err)
	}

	if svc.RequestAnimationAsync(sess.ID, "late") {
		t.Error("request after shutdown should be rejected")
	}
	if got := fm.prompts(); len(got) != 1 || got[0] != "slow" {
		t.Errorf("expected only the first prompt to reach the generator, got %v", got)
	}
}

func TestService_Shutdown_idle(t *testing.T) {
	svc := newTestService(t, &fakeMotion{}, nil)
	if err := svc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if svc.RequestAnimationAsync("any", "wave") {
		t.Error("request after shutdown should be rejected")
	}
}
