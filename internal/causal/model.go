package causal

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// scaler is a max-abs scaler fit on a subset of rows: each column is
// divided by the max absolute value seen in that column, so sparse 0/1
// token columns and large-magnitude proxies like UnitGoldValue sit on
// comparable scales before regression.
type scaler struct {
	maxAbs []float64
}

func fitScaler(X *mat.Dense, rows []int) *scaler {
	_, p := X.Dims()
	s := &scaler{maxAbs: make([]float64, p)}
	for _, r := range rows {
		for c := 0; c < p; c++ {
			if v := math.Abs(X.At(r, c)); v > s.maxAbs[c] {
				s.maxAbs[c] = v
			}
		}
	}
	for c := range s.maxAbs {
		if s.maxAbs[c] == 0 {
			s.maxAbs[c] = 1
		}
	}
	return s
}

func (s *scaler) row(X *mat.Dense, r int) []float64 {
	_, p := X.Dims()
	out := make([]float64, p)
	for c := 0; c < p; c++ {
		out[c] = X.At(r, c) / s.maxAbs[c]
	}
	return out
}

// linearModel is a ridge-penalized linear model: weights fit by full-batch
// gradient descent. For binary targets, predictProba runs the output
// through a sigmoid (logistic regression); for continuous targets, predict
// returns the raw linear output.
type linearModel struct {
	weights []float64
	bias    float64
}

const (
	l2Alpha    = 1e-4
	maxEpochs  = 2000
	learnRate  = 0.05
	tolerance  = 1e-3
)

// fitLogistic trains a ridge-penalized logistic regression on rows of the
// scaled design matrix against binary targets y.
func fitLogistic(Xs [][]float64, rows []int, y []float64) *linearModel {
	return fitGradientDescent(Xs, rows, y, true)
}

// fitLinear trains a ridge-penalized linear regression.
func fitLinear(Xs [][]float64, rows []int, y []float64) *linearModel {
	return fitGradientDescent(Xs, rows, y, false)
}

func fitGradientDescent(Xs [][]float64, rows []int, y []float64, logistic bool) *linearModel {
	if len(rows) == 0 {
		return &linearModel{}
	}
	p := len(Xs[rows[0]])
	m := &linearModel{weights: make([]float64, p)}
	n := float64(len(rows))

	prevLoss := math.Inf(1)
	for epoch := 0; epoch < maxEpochs; epoch++ {
		gradW := make([]float64, p)
		var gradB float64
		var loss float64
		for _, r := range rows {
			x := Xs[r]
			pred := m.linearOutput(x)
			var yhat, residual float64
			if logistic {
				yhat = sigmoid(pred)
				residual = yhat - y[r]
				loss += logLoss(yhat, y[r])
			} else {
				yhat = pred
				residual = yhat - y[r]
				loss += residual * residual
			}
			for i, xi := range x {
				gradW[i] += residual * xi
			}
			gradB += residual
		}
		for i := range gradW {
			gradW[i] = gradW[i]/n + l2Alpha*m.weights[i]
			m.weights[i] -= learnRate * gradW[i]
		}
		m.bias -= learnRate * (gradB / n)
		loss = loss/n + l2Alpha*sumSq(m.weights)
		if math.Abs(prevLoss-loss) < tolerance {
			break
		}
		prevLoss = loss
	}
	return m
}

func (m *linearModel) linearOutput(x []float64) float64 {
	var out float64
	for i, xi := range x {
		out += m.weights[i] * xi
	}
	return out + m.bias
}

func (m *linearModel) predictProba(x []float64) float64 { return sigmoid(m.linearOutput(x)) }
func (m *linearModel) predict(x []float64) float64       { return m.linearOutput(x) }

func sigmoid(z float64) float64 { return 1 / (1 + math.Exp(-z)) }

func logLoss(yhat, y float64) float64 {
	const eps = 1e-12
	yhat = math.Min(math.Max(yhat, eps), 1-eps)
	return -(y*math.Log(yhat) + (1-y)*math.Log(1-yhat))
}

func sumSq(w []float64) float64 {
	var s float64
	for _, v := range w {
		s += v * v
	}
	return s
}

// constantModel always predicts c, used as the fallback when a training
// group is too small or has degenerate variance.
type constantModel struct{ c float64 }

func (m constantModel) predictProba(x []float64) float64 { return m.c }
func (m constantModel) predict(x []float64) float64       { return m.c }

// predictor is implemented by linearModel and constantModel.
type predictor interface {
	predictProba([]float64) float64
	predict([]float64) float64
}
