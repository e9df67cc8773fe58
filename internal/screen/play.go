package screen

import (
	"context"

	"go.uber.org/zap"

	"github.com/eink-labs/chess-hlss/internal/board"
	"github.com/eink-labs/chess-hlss/internal/domain"
	"github.com/eink-labs/chess-hlss/internal/obslog"
	"github.com/eink-labs/chess-hlss/internal/remote"
	"github.com/eink-labs/chess-hlss/internal/rules"
	"github.com/eink-labs/chess-hlss/internal/wizard"
)

// handlePlay routes a button press on a play screen. Priority order: finished
// game, resign confirmation, open opponent draw offer, then the move wizard
// or the waiting-state controls.
func (r *Router) handlePlay(ctx context.Context, ds *session, b domain.Button) error {
	game := r.activeGame(ds)
	if game == nil {
		return r.closeGame(ctx, ds)
	}

	if game.Status().Terminal() {
		if b == domain.Enter {
			return r.closeGame(ctx, ds)
		}
		return nil
	}

	if ds.resignConfirm {
		ds.resignConfirm = false
		if b == domain.Esc {
			return r.resign(ctx, game)
		}
		// Any other event closes the prompt without side effects.
		return nil
	}

	if game.DrawOffer() == domain.DrawOfferOpponent {
		switch b {
		case domain.Enter:
			return r.answerDraw(ctx, game, true)
		case domain.Esc:
			return r.answerDraw(ctx, game, false)
		}
		// Numbered buttons keep working underneath an open offer.
	}

	if game.OurTurn() && game.Pending() == "" {
		return r.handleWizard(ctx, ds, game, b)
	}
	return r.handleWaiting(ds, b)
}

func (r *Router) handleWizard(ctx context.Context, ds *session, game *board.Session, b domain.Button) error {
	r.ensureWizard(ds, game)
	if ds.wiz == nil {
		return nil
	}

	if b == domain.Btn8 && !ds.wiz.BindsButton(domain.Btn8) {
		ds.overlay = true
		return nil
	}

	res := ds.wiz.Press(b)
	switch res.Effect {
	case wizard.EffectConfirmed:
		ds.wiz = nil
		if res.Move == nil {
			return nil
		}
		return r.submitMove(ctx, ds, game, res.Move)
	case wizard.EffectCancelled:
		// ESC with nothing selected has nothing to cancel. The wizard is
		// rebuilt at the piece step on the next draw; resigning stays behind
		// the waiting-state ESC prompt only.
		ds.wiz = nil
	}
	return nil
}

func (r *Router) handleWaiting(ds *session, b domain.Button) error {
	switch b {
	case domain.Btn8:
		ds.overlay = true
	case domain.Enter:
		return r.offerDraw(ds, r.activeGame(ds))
	case domain.Esc:
		ds.resignConfirm = true
		ds.notice = r.cat.Text("play.confirm_resign", nil)
	}
	return nil
}

// submitMove runs the optimistic submit: stage locally, push to the remote
// service, then commit or revert on the outcome.
func (r *Router) submitMove(ctx context.Context, ds *session, game *board.Session, mv *rules.Move) error {
	version := game.Version()
	if err := game.StagePending(mv.UCI); err != nil {
		obslog.L().Warn("stage move failed",
			zap.String("game_id", game.GameID()),
			zap.String("move", mv.UCI),
			zap.Error(err),
		)
		return nil
	}

	submitCtx, cancel := context.WithTimeout(ctx, r.cfg.SubmitTimeout)
	defer cancel()
	err := r.client.SubmitMove(submitCtx, game.AccountID(), game.GameID(), mv.UCI, version)
	if err != nil {
		game.RevertPending()
		ds.notice = r.cat.Text("play.notice.move_rejected", nil)
		if remote.IsRejection(err) {
			obslog.L().Warn("move rejected by remote",
				zap.String("game_id", game.GameID()),
				zap.String("move", mv.UCI),
				zap.Int("version", version),
				zap.Error(err),
			)
		} else {
			obslog.L().Error("move submission failed",
				zap.String("game_id", game.GameID()),
				zap.String("move", mv.UCI),
				zap.Error(err),
			)
		}
		return nil
	}

	if err := game.CommitPending(); err != nil {
		obslog.L().Error("commit accepted move failed",
			zap.String("game_id", game.GameID()),
			zap.String("move", mv.UCI),
			zap.Error(err),
		)
		return nil
	}
	ds.lastMove[game.GameID()] = mv.UCI
	// Accepting a move implicitly declines any open draw offer.
	game.SetDrawOffer(domain.DrawOfferNone)
	return nil
}

func (r *Router) offerDraw(ds *session, game *board.Session) error {
	if game == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.SubmitTimeout)
	defer cancel()
	if err := r.client.HandleDraw(ctx, game.AccountID(), game.GameID(), true); err != nil {
		obslog.L().Error("draw offer failed",
			zap.String("game_id", game.GameID()),
			zap.Error(err),
		)
		ds.notice = r.cat.Text("play.notice.move_rejected", nil)
		return nil
	}
	game.SetDrawOffer(domain.DrawOfferSelf)
	ds.notice = r.cat.Text("play.notice.draw_sent", nil)
	return nil
}

func (r *Router) answerDraw(ctx context.Context, game *board.Session, accept bool) error {
	drawCtx, cancel := context.WithTimeout(ctx, r.cfg.SubmitTimeout)
	defer cancel()
	if err := r.client.HandleDraw(drawCtx, game.AccountID(), game.GameID(), accept); err != nil {
		obslog.L().Error("draw answer failed",
			zap.String("game_id", game.GameID()),
			zap.Bool("accept", accept),
			zap.Error(err),
		)
		return nil
	}
	if !accept {
		game.SetDrawOffer(domain.DrawOfferNone)
	}
	// An accepted draw ends the game through the event stream.
	return nil
}

func (r *Router) resign(ctx context.Context, game *board.Session) error {
	resignCtx, cancel := context.WithTimeout(ctx, r.cfg.SubmitTimeout)
	defer cancel()
	if err := r.client.Resign(resignCtx, game.AccountID(), game.GameID()); err != nil {
		obslog.L().Error("resign failed",
			zap.String("game_id", game.GameID()),
			zap.Error(err),
		)
		return nil
	}
	// The terminal result arrives on the event stream; close out locally so
	// the player is not stuck if the stream lags.
	winner := domain.White
	if game.Side() == domain.White {
		winner = domain.Black
	}
	game.MarkEnded(domain.StatusResign, winner)
	return nil
}
