package engine

import (
	"fmt"

	"github.com/shaiso/Pipewright/internal/domain"
)

// ExpandFork разворачивает fork над scope вышестоящего lane.
//
// Каждая ветка получает новый lane и собирается рекурсивно (вложенные
// fork поддерживаются). Первый узел каждой ветки читает один и тот же
// вышестоящий канал (голову lane), поэтому Source общий для всех веток.
// Выходные каналы содержат lane и pid и не совпадают между ветками.
//
// Возвращает зарегистрированный в графе Fork; Heads параллелен Lanes.
// Ветка, которая начинается с вложенного fork, даёт один узел: первую
// голову вложенного fork. Ветки без выхода в Outputs не попадают.
// Ошибки: ErrEmptyForkSpec, а также фатальный *ResourceError из веток.
func (s *session) ExpandFork(spec *domain.ForkSpec, upstream Scope) (*domain.Fork, error) {
	if spec == nil || len(spec.Branches) == 0 {
		return nil, fmt.Errorf("%w: fork has no branches", ErrEmptyForkSpec)
	}

	s.forkSeq++
	fork := &domain.Fork{
		ID:     fmt.Sprintf("fork_%d", s.forkSeq),
		Source: upstream.Head,
	}

	for i, branch := range spec.Branches {
		if len(branch) == 0 {
			s.report.Error(0, fmt.Errorf("%w: %s branch %d is empty", ErrEmptyForkSpec, fork.ID, i+1))
			continue
		}

		lane := s.nextLane()
		res, err := s.segment(branch, lane, upstream, fork.ID)
		if err != nil {
			return nil, err
		}

		fork.Lanes = append(fork.Lanes, lane)
		var head domain.NodeID
		for _, pid := range res.heads {
			if pid != 0 {
				head = pid
				break
			}
		}
		fork.Heads = append(fork.Heads, head)
		if res.out != "" {
			fork.Outputs = append(fork.Outputs, res.out)
		}
	}

	// Fork в начале pipeline: источник — канал, который прочитала первая ветка
	for _, pid := range fork.Heads {
		if fork.Source != "" {
			break
		}
		head, ok := s.graph.Node(pid)
		if !ok {
			continue
		}
		if tpl, ok := s.graph.Template(head.Template); ok {
			if primary, ok := tpl.PrimaryInput(); ok {
				fork.Source = head.Inputs[primary.Name]
			}
		}
	}

	if err := s.graph.AddFork(fork); err != nil {
		return nil, err
	}

	s.logger.Debug("fork expanded",
		"fork", fork.ID,
		"source", fork.Source,
		"lanes", fork.Lanes,
	)
	return fork, nil
}
