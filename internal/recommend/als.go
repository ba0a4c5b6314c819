package recommend

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/fitfeed/fitfeed/pkg/models"
)

// ALSConfig holds the hyperparameters for one training run. Alpha is
// the implicit-feedback confidence weight: an observed cell with
// aggregated weight w carries confidence 1 + Alpha*w, unobserved cells
// carry confidence 1 toward a preference of zero.
type ALSConfig struct {
	Factors        int
	Iterations     int
	Regularization float64
	Alpha          float64
}

func (c ALSConfig) withDefaults() ALSConfig {
	if c.Factors == 0 {
		c.Factors = 50
	}
	if c.Iterations == 0 {
		c.Iterations = 15
	}
	if c.Regularization == 0 {
		c.Regularization = 0.01
	}
	if c.Alpha == 0 {
		c.Alpha = 40
	}
	return c
}

// FactorModel is the immutable output of one ALS training run: the user
// and item latent factor matrices together with the exact id-to-row
// mappings of the matrix snapshot they were trained on. The bundle is
// replaced wholesale by retraining and never patched in place; factors
// are numerically meaningless against any other mapping, which is why
// the mappings travel with the factors everywhere, including to disk.
type FactorModel struct {
	Rank       int
	Iterations int
	TrainedAt  time.Time

	userFactors *mat.Dense // users x rank
	itemFactors *mat.Dense // items x rank

	userIndex map[int64]int
	itemIndex map[int64]int
	userIDs   []int64
	itemIDs   []int64
}

// Users returns the number of users the model was trained on.
func (fm *FactorModel) Users() int { return len(fm.userIDs) }

// Items returns the number of items the model can score.
func (fm *FactorModel) Items() int { return len(fm.itemIDs) }

// KnowsUser reports whether userID was present in the training snapshot.
func (fm *FactorModel) KnowsUser(userID int64) bool {
	_, ok := fm.userIndex[userID]
	return ok
}

// TrainALS factorizes the interaction matrix by implicit-feedback
// alternating least squares: every cell participates with preference 1
// where an interaction was observed and 0 elsewhere, weighted by
// confidence 1 + Alpha*w, and item factors are held fixed while each
// user row is solved as a Tikhonov-regularized system, then the roles
// swap, for a fixed number of iterations. The shared Gram matrix of the
// fixed side covers the unobserved cells, so each row solve only touches
// that row's observed entries.
//
// Factor initialization uses a fixed-seed source so retraining the same
// snapshot reproduces the same model bit for bit.
func TrainALS(m *InteractionMatrix, cfg ALSConfig, logger *logrus.Logger) (*FactorModel, error) {
	cfg = cfg.withDefaults()
	if cfg.Factors < 0 || cfg.Iterations < 0 || cfg.Regularization < 0 || cfg.Alpha < 0 {
		return nil, fmt.Errorf("als: negative hyperparameter: %w", ErrInvalidParameter)
	}
	if m.Users() < 2 || m.Items() < 2 {
		return nil, fmt.Errorf("als: need at least 2 users and 2 items, got %d users and %d items: %w",
			m.Users(), m.Items(), ErrInsufficientData)
	}

	r := cfg.Factors
	users, items := m.Users(), m.Items()

	rng := rand.New(rand.NewSource(1))
	userFactors := randomFactors(rng, users, r)
	itemFactors := randomFactors(rng, items, r)

	start := time.Now()
	for iter := 0; iter < cfg.Iterations; iter++ {
		solveSide(userFactors, itemFactors, m.rows, cfg.Regularization, cfg.Alpha)
		solveSide(itemFactors, userFactors, m.cols, cfg.Regularization, cfg.Alpha)
	}

	model := &FactorModel{
		Rank:        r,
		Iterations:  cfg.Iterations,
		TrainedAt:   time.Now().UTC(),
		userFactors: userFactors,
		itemFactors: itemFactors,
		userIndex:   m.UserIndex,
		itemIndex:   m.ItemIndex,
		userIDs:     m.UserIDs,
		itemIDs:     m.ItemIDs,
	}

	logger.WithFields(logrus.Fields{
		"users":      users,
		"items":      items,
		"rank":       r,
		"iterations": cfg.Iterations,
		"nnz":        m.NNZ(),
		"duration":   time.Since(start),
	}).Info("ALS training completed")

	return model, nil
}

// solveSide recomputes every row of target while fixed stays constant.
// entries[i] lists the observed cells of target row i against rows of
// fixed. Each solve is the r x r normal-equation system
// (Y'Y + Y'(C-I)Y + lambda*I) x = Y'Cp, where Y'Y covers the unobserved
// cells at confidence 1 and the confidence surplus C-I is nonzero only
// on the row's observed entries.
func solveSide(target, fixed *mat.Dense, entries [][]matrixEntry, lambda, alpha float64) {
	nFixed, r := fixed.Dims()

	// Gram matrix of the whole fixed side plus the regularization term,
	// shared by every row solve in this half-iteration.
	base := mat.NewSymDense(r, nil)
	for row := 0; row < nFixed; row++ {
		y := fixed.RawRowView(row)
		for i := 0; i < r; i++ {
			for j := i; j < r; j++ {
				base.SetSym(i, j, base.At(i, j)+y[i]*y[j])
			}
		}
	}
	for i := 0; i < r; i++ {
		base.SetSym(i, i, base.At(i, i)+lambda)
	}

	a := mat.NewSymDense(r, nil)
	b := mat.NewVecDense(r, nil)
	x := mat.NewVecDense(r, nil)

	for row := 0; row < len(entries); row++ {
		obs := entries[row]
		if len(obs) == 0 {
			continue
		}

		a.CopySym(base)
		b.Zero()
		for _, e := range obs {
			y := fixed.RawRowView(e.index)
			confidence := 1 + alpha*e.weight
			for i := 0; i < r; i++ {
				b.SetVec(i, b.AtVec(i)+confidence*y[i])
				for j := i; j < r; j++ {
					a.SetSym(i, j, a.At(i, j)+(confidence-1)*y[i]*y[j])
				}
			}
		}

		var chol mat.Cholesky
		if chol.Factorize(a) {
			if err := chol.SolveVecTo(x, b); err == nil {
				target.SetRow(row, x.RawVector().Data)
				continue
			}
		}

		// Regularization keeps the system PD in practice; fall back to a
		// general dense solve if factorization still fails.
		var dense mat.Dense
		if err := dense.Solve(a, b); err == nil {
			target.SetRow(row, mat.Col(nil, 0, &dense))
		}
	}
}

func randomFactors(rng *rand.Rand, rows, rank int) *mat.Dense {
	data := make([]float64, rows*rank)
	scale := 1.0 / float64(rank)
	for i := range data {
		data[i] = rng.NormFloat64() * scale
	}
	return mat.NewDense(rows, rank, data)
}

// Recommend scores every trained item for userID by latent-factor dot
// product, drops excluded items, and returns the top n by descending
// score with ties broken by ascending item id. An unknown user yields an
// empty result without error; the caller is expected to fall back to
// content-based recommendations for cold-start users.
func (fm *FactorModel) Recommend(userID int64, n int, exclude map[int64]struct{}) []models.ScoredItem {
	if n <= 0 {
		return nil
	}
	row, ok := fm.userIndex[userID]
	if !ok {
		return nil
	}

	userVec := fm.userFactors.RawRowView(row)

	scored := make([]models.ScoredItem, 0, len(fm.itemIDs))
	for idx, itemID := range fm.itemIDs {
		if _, skip := exclude[itemID]; skip {
			continue
		}
		itemVec := fm.itemFactors.RawRowView(idx)
		var score float64
		for i, v := range userVec {
			score += v * itemVec[i]
		}
		scored = append(scored, models.ScoredItem{ItemID: itemID, Score: score})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ItemID < scored[j].ItemID
	})

	if len(scored) > n {
		scored = scored[:n]
	}
	return scored
}
