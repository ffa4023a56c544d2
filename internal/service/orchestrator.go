// Package service sequences battle turns: it serializes actions per battle,
// persists each resolved turn and fans out the side effects of a commit.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"monbattle/internal/battle"
	"monbattle/internal/notify"
)

// DefaultTurnTimeout is used when no timeout is configured.
const DefaultTurnTimeout = 30 * time.Second

// Locker hands out exclusive per-battle locks within this process.
type Locker interface {
	Lock(id uuid.UUID) func()
}

// Rater applies rating changes for a finished battle.
type Rater interface {
	HandleBattleCompletion(ctx context.Context, b *battle.Battle) (bool, error)
}

// Archiver stores the record of a finished battle.
type Archiver interface {
	Archive(ctx context.Context, b *battle.Battle, turns []battle.Turn) error
}

// Orchestrator is the single entry point for changing a battle.
type Orchestrator struct {
	repo     battle.Repository
	locks    Locker
	resolver *battle.Resolver
	notifier notify.Notifier
	rater    Rater
	archiver Archiver
	clock    clockwork.Clock
	timeout  time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithNotifier sets where committed updates are published.
func WithNotifier(n notify.Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithRater enables rating updates for finished battles.
func WithRater(r Rater) Option {
	return func(o *Orchestrator) { o.rater = r }
}

// WithArchiver enables archiving of finished battles.
func WithArchiver(a Archiver) Option {
	return func(o *Orchestrator) { o.archiver = a }
}

// WithClock overrides the clock.
func WithClock(c clockwork.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithTurnTimeout sets the per-turn deadline for battles started here.
func WithTurnTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// NewOrchestrator wires an orchestrator.
func NewOrchestrator(repo battle.Repository, locks Locker, resolver *battle.Resolver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		repo:     repo,
		locks:    locks,
		resolver: resolver,
		notifier: notify.Noop{},
		clock:    clockwork.NewRealClock(),
		timeout:  DefaultTurnTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Result is a committed turn.
type Result struct {
	Battle *battle.Battle    `json:"battle"`
	Turn   battle.TurnResult `json:"turn"`
}

// Battle loads a battle without locking it.
func (o *Orchestrator) Battle(ctx context.Context, id uuid.UUID) (*battle.Battle, error) {
	return o.repo.LoadBattle(ctx, id)
}

// Turns returns a battle's audit log.
func (o *Orchestrator) Turns(ctx context.Context, id uuid.UUID) ([]battle.Turn, error) {
	return o.repo.ListTurns(ctx, id)
}

// Submit applies a player's action. Rejections are returned as
// *battle.Rejection and leave the battle untouched.
func (o *Orchestrator) Submit(ctx context.Context, battleID, actor uuid.UUID, act battle.Action) (Result, error) {
	if act.Kind == battle.ActionTimeout {
		return Result{}, battle.ErrInvalidAction
	}
	return o.commit(ctx, battleID, func(*battle.Battle) (uuid.UUID, battle.Action, error) {
		return actor, act, nil
	})
}

// ResolveTimeout submits the synthetic timeout for whoever the battle is
// waiting on. It returns battle.ErrTurnNotExpired if the clock has not run
// out under the lock.
func (o *Orchestrator) ResolveTimeout(ctx context.Context, battleID uuid.UUID) (Result, error) {
	return o.commit(ctx, battleID, func(b *battle.Battle) (uuid.UUID, battle.Action, error) {
		if b.Status != battle.StatusActive {
			return uuid.Nil, battle.Action{}, battle.ErrBattleNotActive
		}
		actor := b.State.TimedOutActor()
		if actor == nil {
			return uuid.Nil, battle.Action{}, battle.ErrTurnNotExpired
		}
		return *actor, battle.TimeoutAction(), nil
	})
}

type pickFunc func(b *battle.Battle) (uuid.UUID, battle.Action, error)

func (o *Orchestrator) commit(ctx context.Context, battleID uuid.UUID, pick pickFunc) (Result, error) {
	var (
		res Result
		out battle.Outcome
	)
	unlock := o.locks.Lock(battleID)
	err := o.repo.WithTx(ctx, func(tx battle.Tx) error {
		b, err := tx.LockAndLoad(ctx, battleID)
		if err != nil {
			return err
		}
		actor, act, err := pick(b)
		if err != nil {
			return err
		}
		now := o.clock.Now().UTC()
		if err := battle.CheckTurnOrder(b, actor, act, now); err != nil {
			return err
		}
		out, err = o.resolver.Apply(b.State, actor, act, now)
		if err != nil {
			return err
		}
		if act.Kind == battle.ActionSwap {
			narrateSwap(&out, actor)
		}

		b.State = out.State
		if out.Ended {
			b.Status = battle.StatusCompleted
			b.EndedAt = &now
			b.WinnerID = out.WinnerID
		}
		if err := b.Validate(); err != nil {
			return fmt.Errorf("resolved state rejected: %w", err)
		}
		if err := tx.Save(ctx, b); err != nil {
			return fmt.Errorf("save battle: %w", err)
		}
		if err := tx.AppendTurn(ctx, battle.Turn{
			BattleID:    b.ID,
			TurnNumber:  out.Result.Turn,
			ActorUserID: actor,
			Action:      act,
			Result:      out.Result,
			CreatedAt:   now,
		}); err != nil {
			return fmt.Errorf("append turn: %w", err)
		}
		res = Result{Battle: b, Turn: out.Result}
		return nil
	})
	unlock()
	if err != nil {
		return Result{}, err
	}

	log.Info().
		Str("battle_id", battleID.String()).
		Int("turn", res.Turn.Turn).
		Str("actor_id", res.Turn.ActorUserID.String()).
		Str("action", string(res.Turn.Action.Kind)).
		Bool("ended", out.Ended).
		Msg("Turn resolved")
	if out.DoubleKnockout {
		log.Warn().Str("battle_id", battleID.String()).Msg("Double knockout, victory awarded to the acting player")
	}
	o.afterCommit(ctx, res.Battle, out.Ended)
	return res, nil
}

// narrateSwap adds the arrival line to a swap and folds it into the log entry
// the resolver already recorded for this turn.
func narrateSwap(out *battle.Outcome, actor uuid.UUID) {
	p, ok := out.State.Participants[actor]
	if !ok {
		return
	}
	in := p.Active()
	res := out.Result
	res.Events = append(append([]battle.Event(nil), res.Events...), battle.Event{
		Kind:      battle.EventSwap,
		MonsterID: in.ID,
		Message:   fmt.Sprintf("%s swapped to %s.", p.DisplayName(), in.Name),
	})
	out.Result = res
	out.State.AppendOrMerge(res)
}

// afterCommit runs the side effects of a committed change. Failures are
// logged; the commit stands.
func (o *Orchestrator) afterCommit(ctx context.Context, b *battle.Battle, ended bool) {
	if err := o.notifier.Publish(ctx, notify.EventFor(b)); err != nil {
		log.Warn().Err(err).Str("battle_id", b.ID.String()).Msg("Failed to publish battle update")
	}
	if !ended {
		return
	}
	if o.rater != nil && b.WinnerID != nil {
		applied, err := o.rater.HandleBattleCompletion(ctx, b)
		if err != nil {
			log.Error().Err(err).Str("battle_id", b.ID.String()).Msg("Failed to apply rating")
		} else if applied {
			b.RatingApplied = true
		}
	}
	if o.archiver != nil {
		turns, err := o.repo.ListTurns(ctx, b.ID)
		if err == nil {
			err = o.archiver.Archive(ctx, b, turns)
		}
		if err != nil {
			log.Error().Err(err).Str("battle_id", b.ID.String()).Msg("Failed to archive battle")
		}
	}
}
