package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/models"
	"github.com/PubNubDevelopers/SBMM-Engine/internal/repository"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/metrics"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/retry"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/transport"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultTickInterval   = 5 * time.Second
	DefaultCooldown       = 30 * time.Second
	DefaultPunishCooldown = 2 * time.Minute

	tickLockName = "matchmaking-tick"
)

// DefaultRegions 기본 매칭 지역
var DefaultRegions = []string{"us-east-1", "us-west-1", "eu-central-1", "ap-southeast-1"}

// TickLocker 여러 인스턴스가 같은 큐를 동시에 처리하지 않도록 하는 잠금
type TickLocker interface {
	Acquire(ctx context.Context, name string) (func(context.Context) error, error)
}

// MatchmakingConfig 스케줄러 의존성과 설정
type MatchmakingConfig struct {
	Transport   transport.Transport
	Players     repository.PlayerRepository
	Matcher     *Matcher
	Constraints *ConstraintStore
	Coordinator *Coordinator
	Games       *GameService
	Locker      TickLocker
	Clock       clock.Clock
	Retry       retry.Policy
	Metrics     *metrics.Manager
	Logger      *zap.Logger

	Regions        []string
	Interval       time.Duration
	Cooldown       time.Duration
	PunishCooldown time.Duration
	CandidateLimit int
	// TickOnStart runs one tick as soon as the loop starts.
	TickOnStart bool
}

// RegionReport 한 지역의 틱 결과
type RegionReport struct {
	Region   string `json:"region"`
	Ingested int    `json:"ingested"`
	Pruned   int    `json:"pruned"`
	Batch    int    `json:"batch"`
	Pairs    int    `json:"pairs"`
	Unpaired int    `json:"unpaired"`
	Requeued int    `json:"requeued"`
	Err      error  `json:"-"`
}

// TickReport 틱 한 번의 결과
type TickReport struct {
	Regions  []RegionReport `json:"regions"`
	Released int            `json:"released"`
	Duration time.Duration  `json:"duration"`
}

// Pairs 전체 지역에서 만들어진 쌍 수
func (r TickReport) Pairs() int {
	total := 0
	for _, region := range r.Regions {
		total += region.Pairs
	}
	return total
}

// Snapshot 헬스 체크용 상태 요약
type Snapshot struct {
	Running       bool                             `json:"running"`
	Queues        map[string][]models.WaitingEntry `json:"queues"`
	ActiveMatches int                              `json:"activeMatches"`
	Cooling       int                              `json:"cooling"`
}

type activeMatch struct {
	pair    models.Pair
	state   models.ConfirmationState
	session *models.Session
}

// MatchmakingService 지역별 대기열을 주기적으로 비워 매칭하고, 쌍마다 확인 핸드셰이크를 띄운다.
// 대기열/진행 중 매치/쿨다운 상태는 이 서비스만 변경한다.
type MatchmakingService struct {
	transport   transport.Transport
	players     repository.PlayerRepository
	matcher     *Matcher
	constraints *ConstraintStore
	coordinator *Coordinator
	games       *GameService
	locker      TickLocker
	clock       clock.Clock
	retry       retry.Policy
	metrics     *metrics.Manager
	logger      *zap.Logger
	notify      *notifier

	regions        []string
	interval       time.Duration
	cooldown       time.Duration
	punishCooldown time.Duration
	candidateLimit int
	tickOnStart    bool

	tickMu  sync.Mutex
	stateMu sync.Mutex
	queues  map[string]*waitQueue
	active  map[string]string
	matches map[string]*activeMatch
	cooling *cooldowns
	results chan ConfirmationResult

	baseCtx  context.Context
	cancel   context.CancelFunc
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewMatchmakingService(cfg MatchmakingConfig) *MatchmakingService {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if len(cfg.Regions) == 0 {
		cfg.Regions = DefaultRegions
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTickInterval
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.PunishCooldown <= 0 {
		cfg.PunishCooldown = DefaultPunishCooldown
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = DefaultCandidateLimit
	}
	if cfg.Constraints == nil {
		cfg.Constraints = NewConstraintStore(models.DefaultConstraints(), cfg.Logger)
	}
	if cfg.Matcher == nil {
		cfg.Matcher = NewMatcher(NewScorer(nil), cfg.Logger)
	}
	if cfg.Coordinator == nil {
		// 확인 단계 없이는 쌍이 풀리지 않는다
		cfg.Coordinator = NewCoordinator(CoordinatorConfig{
			Transport: cfg.Transport,
			Players:   cfg.Players,
			Clock:     cfg.Clock,
			Retry:     cfg.Retry,
			Metrics:   cfg.Metrics,
			Logger:    cfg.Logger,
		})
	}

	queues := make(map[string]*waitQueue, len(cfg.Regions))
	for _, region := range cfg.Regions {
		queues[region] = newWaitQueue(region)
	}

	return &MatchmakingService{
		transport:   cfg.Transport,
		players:     cfg.Players,
		matcher:     cfg.Matcher,
		constraints: cfg.Constraints,
		coordinator: cfg.Coordinator,
		games:       cfg.Games,
		locker:      cfg.Locker,
		clock:       cfg.Clock,
		retry:       cfg.Retry,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		notify: &notifier{
			transport: cfg.Transport,
			retry:     cfg.Retry,
			clock:     cfg.Clock,
			logger:    cfg.Logger,
		},
		regions:        append([]string(nil), cfg.Regions...),
		interval:       cfg.Interval,
		cooldown:       cfg.Cooldown,
		punishCooldown: cfg.PunishCooldown,
		candidateLimit: cfg.CandidateLimit,
		tickOnStart:    cfg.TickOnStart,
		queues:         queues,
		active:         make(map[string]string),
		matches:        make(map[string]*activeMatch),
		cooling:        newCooldowns(),
		results:        make(chan ConfirmationResult, 64),
		baseCtx:        context.Background(),
		cancel:         func() {},
		stopChan:       make(chan struct{}),
	}
}

// Start 매칭 루프 시작
func (s *MatchmakingService) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	// Stop 이후 재시작할 수 있도록 매번 새로 만든다
	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	s.stopChan = make(chan struct{})
	ctx, stop := s.baseCtx, s.stopChan
	s.mu.Unlock()

	s.logger.Info("Starting MatchmakingService",
		zap.Duration("interval", s.interval),
		zap.Strings("regions", s.regions))

	s.wg.Add(2)
	go s.resultLoop(stop)
	go s.matchmakingLoop(ctx, stop)
	return nil
}

// Stop 매칭 루프 중지. 진행 중인 핸드셰이크와 경기는 취소된다.
func (s *MatchmakingService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, stop := s.cancel, s.stopChan
	s.mu.Unlock()

	s.logger.Info("Stopping MatchmakingService")
	cancel()
	close(stop)
	s.wg.Wait()
	s.logger.Info("MatchmakingService stopped")
}

// Running reports whether the loop is active.
func (s *MatchmakingService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *MatchmakingService) matchmakingLoop(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	if s.tickOnStart {
		s.runTick(ctx)
	}

	for {
		select {
		case <-ticker.C:
			s.runTick(ctx)
		case <-stop:
			return
		}
	}
}

// lifecycle 현재 실행 구간의 컨텍스트와 종료 채널
func (s *MatchmakingService) lifecycle() (context.Context, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx, s.stopChan
}

func (s *MatchmakingService) runTick(ctx context.Context) {
	if _, err := s.Tick(ctx); err != nil && !errors.Is(err, ErrTickInProgress) {
		s.logger.Warn("Tick failed", zap.Error(err))
	}
}

// Tick 모든 지역에 대해 한 번 실행. 다른 틱이 진행 중이면 ErrTickInProgress.
func (s *MatchmakingService) Tick(ctx context.Context) (TickReport, error) {
	if !s.tickMu.TryLock() {
		s.metrics.IncTick(metrics.TickSkipped)
		s.logger.Debug("Skipping overlapping tick")
		return TickReport{}, ErrTickInProgress
	}
	defer s.tickMu.Unlock()

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, tickLockName)
		if err != nil {
			s.metrics.IncTick(metrics.TickSkipped)
			s.logger.Debug("Tick lease held elsewhere", zap.Error(err))
			return TickReport{}, ErrTickInProgress
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				s.logger.Warn("Failed to release tick lease", zap.Error(err))
			}
		}()
	}

	start := s.clock.Now()
	report := TickReport{Released: s.releaseCooldowns(ctx)}

	for _, region := range s.regions {
		report.Regions = append(report.Regions, s.tickRegion(ctx, region))
	}

	report.Duration = s.clock.Now().Sub(start)
	s.metrics.ObserveTickDuration(report.Duration)
	if report.Pairs() > 0 {
		s.metrics.IncTick(metrics.TickRan)
	} else {
		s.metrics.IncTick(metrics.TickIdle)
	}
	return report, nil
}

func (s *MatchmakingService) tickRegion(ctx context.Context, region string) RegionReport {
	report := RegionReport{Region: region}
	log := s.logger.With(zap.String("region", region))
	topic := transport.MatchmakingTopic(region)

	// 1. presence 수집
	presence, err := retry.Value(ctx, s.retry, "presence", func(ctx context.Context) ([]string, error) {
		return s.transport.Presence(ctx, topic)
	})
	if err != nil {
		log.Warn("Presence fetch failed, keeping current queue", zap.Error(err))
		report.Err = err
	}

	// 2. 대기열 동기화 + 비우기
	s.stateMu.Lock()
	q := s.queues[region]
	if err == nil {
		report.Pruned, report.Ingested = s.syncPresenceLocked(q, presence)
	}
	var entries []models.WaitingEntry
	if q.len() >= 2 {
		entries = q.drainAll()
	}
	queued := q.len()
	s.stateMu.Unlock()

	if entries == nil {
		s.metrics.SetQueueSize(region, queued)
		return report
	}
	report.Batch = len(entries)

	// 3. 플레이어 로드 + Joining 알림. 실패한 플레이어는 다시 대기열로.
	batchID := uuid.New().String()
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.PlayerID)
	}

	var batch []models.Player
	var requeue []string
	for _, id := range ids {
		player, err := retry.Value(ctx, s.retry, "get player", func(ctx context.Context) (*models.Player, error) {
			return s.players.Get(ctx, id)
		})
		if err != nil {
			log.Warn("Failed to load player, requeueing", zap.String("playerId", id), zap.Error(err))
			requeue = append(requeue, id)
			continue
		}

		joining := models.Event{Type: models.EventJoining, MatchID: batchID, PlayerID: id, Players: ids}
		if err := s.notify.publish(ctx, joining, transport.PlayerTopic(id)); err != nil {
			requeue = append(requeue, id)
			continue
		}
		batch = append(batch, *player)
	}

	// 4. 매칭
	result := MatchResult{}
	if len(batch) >= 2 {
		result = s.matcher.Match(batch, s.constraints.Get())
	} else {
		for _, p := range batch {
			result.Unpaired = append(result.Unpaired, p.ID)
		}
	}

	// 5. 쌍은 active 로, 나머지는 대기열로
	now := s.clock.Now()
	var dispatched []models.Pair
	s.stateMu.Lock()
	for _, pair := range result.Pairs {
		pair.Region = region
		if _, busy := s.active[pair.PlayerA]; busy {
			requeue = append(requeue, pair.PlayerB)
			continue
		}
		if _, busy := s.active[pair.PlayerB]; busy {
			requeue = append(requeue, pair.PlayerA)
			continue
		}
		s.active[pair.PlayerA] = pair.MatchID
		s.active[pair.PlayerB] = pair.MatchID
		s.matches[pair.MatchID] = &activeMatch{pair: pair, state: models.StateCreated}
		dispatched = append(dispatched, pair)
	}
	for _, id := range append(requeue, result.Unpaired...) {
		if q.push(id, now) {
			report.Requeued++
		}
	}
	queued = q.len()
	s.stateMu.Unlock()

	report.Pairs = len(dispatched)
	report.Unpaired = len(result.Unpaired)
	s.metrics.SetQueueSize(region, queued)
	s.metrics.AddPairs(report.Pairs)
	s.metrics.AddUnpaired(report.Unpaired)

	// 6. 검색 토픽에서 빼고 핸드셰이크 시작 (완료는 기다리지 않는다)
	for _, pair := range dispatched {
		for _, id := range pair.Players() {
			id := id
			if err := s.retry.Do(ctx, "leave", func(ctx context.Context) error {
				return s.transport.Leave(ctx, topic, id)
			}); err != nil {
				log.Warn("Failed to leave matchmaking topic", zap.String("playerId", id), zap.Error(err))
			}
		}
		s.dispatch(pair)
	}

	log.Info("Tick completed",
		zap.Int("batch", report.Batch),
		zap.Int("pairs", report.Pairs),
		zap.Int("unpaired", report.Unpaired),
		zap.Int("requeued", report.Requeued))
	return report
}

// syncPresenceLocked presence 에서 사라진 id 를 빼고 새 id 를 넣는다
func (s *MatchmakingService) syncPresenceLocked(q *waitQueue, presence []string) (pruned, ingested int) {
	now := s.clock.Now()
	present := make(map[string]struct{}, len(presence))
	for _, id := range presence {
		present[id] = struct{}{}
	}
	pruned = len(q.retain(present))

	for _, id := range presence {
		if _, busy := s.active[id]; busy {
			continue
		}
		if s.cooling.active(id, now) {
			continue
		}
		if q.push(id, now) {
			ingested++
		}
	}
	return pruned, ingested
}

func (s *MatchmakingService) dispatch(pair models.Pair) {
	s.stateMu.Lock()
	if m, ok := s.matches[pair.MatchID]; ok {
		m.state = models.StateAwaitingConfirmation
	}
	s.stateMu.Unlock()

	ctx, stop := s.lifecycle()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		result := s.coordinator.Run(ctx, pair)
		select {
		case s.results <- result:
		case <-stop:
		}
	}()
}

// resultLoop 핸드셰이크 결과를 하나씩 반영
func (s *MatchmakingService) resultLoop(stop <-chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case result := <-s.results:
			s.applyResult(result)
		case <-stop:
			return
		}
	}
}

func (s *MatchmakingService) applyResult(result ConfirmationResult) {
	pair := result.Pair
	log := s.logger.With(zap.String("matchId", pair.MatchID))
	ctx, _ := s.lifecycle()

	if result.State == models.StateConfirmed && result.Session != nil {
		s.stateMu.Lock()
		if m, ok := s.matches[pair.MatchID]; ok {
			m.state = models.StateConfirmed
			m.session = result.Session
		}
		s.stateMu.Unlock()

		session := *result.Session
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if s.games != nil {
				if _, err := s.games.Play(ctx, session); err != nil {
					log.Warn("Simulated match failed", zap.Error(err))
				}
			}
			s.finishMatch(pair)
		}()
		return
	}

	// 핸드셰이크 실패
	var rejoin []string
	now := s.clock.Now()
	s.stateMu.Lock()
	delete(s.matches, pair.MatchID)
	for _, id := range pair.Players() {
		delete(s.active, id)
		switch {
		case result.Err != nil || result.ConfirmedBy(id):
			rejoin = append(rejoin, id)
		default:
			s.cooling.add(id, pair.Region, now.Add(s.punishCooldown))
		}
	}
	s.stateMu.Unlock()

	if result.Err != nil {
		log.Warn("Confirmation aborted, returning both players to the queue", zap.Error(result.Err))
	}
	for _, id := range rejoin {
		s.rejoin(ctx, pair.Region, id)
	}
}

// finishMatch 경기 종료 후 두 플레이어를 쿨다운에 넣는다
func (s *MatchmakingService) finishMatch(pair models.Pair) {
	readyAt := s.clock.Now().Add(s.cooldown)

	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	delete(s.matches, pair.MatchID)
	for _, id := range pair.Players() {
		delete(s.active, id)
		s.cooling.add(id, pair.Region, readyAt)
	}
}

// releaseCooldowns 만료된 쿨다운 플레이어를 검색 토픽에 다시 넣는다
func (s *MatchmakingService) releaseCooldowns(ctx context.Context) int {
	s.stateMu.Lock()
	ready := s.cooling.popReady(s.clock.Now())
	s.stateMu.Unlock()

	for _, e := range ready {
		if err := mergeUpdate(ctx, s.retry, s.players, e.PlayerID, models.PlayerFields{
			models.FieldPunished:  false,
			models.FieldSearching: true,
		}); err != nil {
			s.logger.Warn("Failed to reset released player", zap.String("playerId", e.PlayerID), zap.Error(err))
		}
		s.rejoin(ctx, e.Region, e.PlayerID)
	}
	return len(ready)
}

// rejoin presence 재등록 + 대기열 삽입
func (s *MatchmakingService) rejoin(ctx context.Context, region, playerID string) {
	if _, ok := s.queues[region]; !ok {
		return
	}
	if err := s.retry.Do(ctx, "join", func(ctx context.Context) error {
		return s.transport.Join(ctx, transport.MatchmakingTopic(region), playerID)
	}); err != nil {
		s.logger.Warn("Failed to rejoin matchmaking topic",
			zap.String("region", region),
			zap.String("playerId", playerID),
			zap.Error(err))
		return
	}
	s.Enqueue(region, playerID)
}

// Enqueue 멱등. 이미 대기 중이거나 매치 중이거나 쿨다운 중이면 false.
func (s *MatchmakingService) Enqueue(region, playerID string) bool {
	if playerID == "" {
		return false
	}

	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	q, ok := s.queues[region]
	if !ok {
		return false
	}
	if _, busy := s.active[playerID]; busy {
		return false
	}
	now := s.clock.Now()
	if s.cooling.active(playerID, now) {
		return false
	}
	if !q.push(playerID, now) {
		return false
	}
	s.metrics.SetQueueSize(region, q.len())
	return true
}

// Join 검색 토픽 presence 등록 + 대기열 삽입 (REST 진입점)
func (s *MatchmakingService) Join(ctx context.Context, region, playerID string) (bool, error) {
	if _, ok := s.queues[region]; !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownRegion, region)
	}
	if playerID == "" {
		return false, fmt.Errorf("%w: empty player id", ErrInvalidInput)
	}

	if _, err := retry.Value(ctx, s.retry, "get player", func(ctx context.Context) (*models.Player, error) {
		return s.players.Get(ctx, playerID)
	}); err != nil {
		return false, fmt.Errorf("failed to load player %s: %w", playerID, err)
	}

	if err := s.retry.Do(ctx, "join", func(ctx context.Context) error {
		return s.transport.Join(ctx, transport.MatchmakingTopic(region), playerID)
	}); err != nil {
		return false, fmt.Errorf("failed to join matchmaking topic: %w", err)
	}
	return s.Enqueue(region, playerID), nil
}

// Leave 대기열과 검색 토픽에서 제거
func (s *MatchmakingService) Leave(ctx context.Context, region, playerID string) error {
	s.stateMu.Lock()
	q, ok := s.queues[region]
	if ok {
		q.remove(playerID)
		s.metrics.SetQueueSize(region, q.len())
	}
	s.stateMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRegion, region)
	}

	if err := s.retry.Do(ctx, "leave", func(ctx context.Context) error {
		return s.transport.Leave(ctx, transport.MatchmakingTopic(region), playerID)
	}); err != nil {
		return fmt.Errorf("failed to leave matchmaking topic: %w", err)
	}
	return nil
}

// DequeueAll 지역 대기열을 원자적으로 비우고 항목을 돌려준다
func (s *MatchmakingService) DequeueAll(region string) []models.WaitingEntry {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	q, ok := s.queues[region]
	if !ok {
		return nil
	}
	entries := q.drainAll()
	s.metrics.SetQueueSize(region, 0)
	return entries
}

// QueueLen 지역 대기열 길이 (모르는 지역은 0)
func (s *MatchmakingService) QueueLen(region string) int {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if q, ok := s.queues[region]; ok {
		return q.len()
	}
	return 0
}

// Regions 설정된 지역 목록
func (s *MatchmakingService) Regions() []string {
	return append([]string(nil), s.regions...)
}

// HasRegion reports whether region is served.
func (s *MatchmakingService) HasRegion(region string) bool {
	_, ok := s.queues[region]
	return ok
}

// Snapshot 상태 요약
func (s *MatchmakingService) Snapshot() Snapshot {
	snap := Snapshot{Running: s.Running(), Queues: make(map[string][]models.WaitingEntry, len(s.queues))}

	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	for region, q := range s.queues {
		snap.Queues[region] = q.snapshot()
	}
	snap.ActiveMatches = len(s.matches)
	snap.Cooling = s.cooling.len()
	return snap
}

// MatchState 진행 중인 매치의 상태
func (s *MatchmakingService) MatchState(matchID string) (models.ConfirmationState, bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	m, ok := s.matches[matchID]
	if !ok {
		return models.StateCreated, false
	}
	return m.state, true
}

// Confirm 플레이어 확인 신호를 쌍 토픽에 발행
func (s *MatchmakingService) Confirm(ctx context.Context, matchID, playerID string) error {
	s.stateMu.Lock()
	m, ok := s.matches[matchID]
	var pair models.Pair
	if ok {
		pair = m.pair
	}
	s.stateMu.Unlock()

	if !ok {
		return ErrMatchNotFound
	}
	if !pair.Has(playerID) {
		return ErrNotInMatch
	}

	payload, err := models.Event{
		Type:      models.EventConfirmed,
		MatchID:   matchID,
		PlayerID:  playerID,
		Timestamp: s.clock.Now(),
	}.Marshal()
	if err != nil {
		return err
	}
	topic := transport.PairTopic(pair.PlayerA, pair.PlayerB)
	if err := s.retry.Do(ctx, "confirm", func(ctx context.Context) error {
		return s.transport.Publish(ctx, topic, payload)
	}); err != nil {
		return fmt.Errorf("failed to publish confirmation: %w", err)
	}
	return nil
}
