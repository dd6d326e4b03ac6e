package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shaiso/Pipewright/internal/domain"
)

// Scope — каналы, видимые узлу в момент связывания.
type Scope struct {
	// Head — голова lane: основной выход предыдущего узла или источник fork.
	// Пусто в начале pipeline.
	Head domain.ChannelID

	// Visible — каналы, доступные по имени: выходы предков и
	// пользовательские источники, в порядке появления.
	Visible []domain.ChannelID
}

// Advance возвращает scope для следующего узла lane.
// Исходный scope не изменяется, поэтому ветки fork не видят выходов друг друга.
func (s Scope) Advance(head domain.ChannelID, produced ...domain.ChannelID) Scope {
	visible := make([]domain.ChannelID, 0, len(s.Visible)+len(produced))
	visible = append(visible, s.Visible...)
	visible = append(visible, produced...)
	if head == "" {
		head = s.Head
	}
	return Scope{Head: head, Visible: visible}
}

// ChannelLookup — доступ к каналам графа по ID.
type ChannelLookup interface {
	Channel(id domain.ChannelID) (*domain.Channel, bool)
}

// BoundNode — результат связывания: узел и созданные им каналы.
type BoundNode struct {
	Node *domain.PipelineNode

	// Channels — новые каналы (external входы и выходы) в порядке слотов.
	Channels []*domain.Channel
}

// Binder — Channel Binder: связывает слоты шаблона с каналами.
//
// Binder не изменяет граф: сессия сборки сама добавляет BoundNode в граф.
// Поэтому повторное связывание одного узла в том же scope даёт
// структурно идентичный результат.
type Binder struct {
	channels ChannelLookup
	checker  ResourceChecker
}

// NewBinder создаёт Binder.
func NewBinder(channels ChannelLookup, checker ResourceChecker) *Binder {
	if checker == nil {
		checker = OSResources{}
	}
	return &Binder{channels: channels, checker: checker}
}

// Bind связывает входы узла с каналами scope и создаёт каналы для выходов.
//
// Правила:
//   - основной вход берёт голову lane (в начале pipeline — источник
//     с тем же именем или единственный источник);
//   - остальные входы ищутся по имени среди видимых каналов;
//   - external входы становятся каналами поверх значения конфигурации,
//     ресурс обязан существовать;
//   - формы слота и канала должны совпадать.
//
// Несуществующий ресурс — фатальная ошибка *ResourceError, возвращается
// сразу и без узла. Остальные ошибки собираются в errors.Join, а частично
// связанный узел возвращается, чтобы сборка могла продолжиться.
func (b *Binder) Bind(node *domain.PipelineNode, tpl *domain.TaskTemplate, scope Scope) (*BoundNode, error) {
	bound := &domain.PipelineNode{
		ID:       node.ID,
		Instance: node.Instance,
		Lane:     node.Lane,
		Template: node.Template,
		Params:   node.Params,
		Fork:     node.Fork,
		Inputs:   make(map[string]domain.ChannelID, len(tpl.Inputs)),
		Outputs:  make(map[string]domain.ChannelID, len(tpl.Outputs)),
	}
	result := &BoundNode{Node: bound}

	// Пути в параметрах (включая external входы) проверяются до связывания
	for _, p := range tpl.Params {
		v, ok := node.Params[p.Name]
		if !ok || !v.IsPath {
			continue
		}
		if err := b.checkResource(v); err != nil {
			return nil, err
		}
	}

	primary, hasPrimary := tpl.PrimaryInput()
	var errs []error

	for _, slot := range tpl.Inputs {
		if slot.External {
			v, ok := node.Params[slot.Name]
			if !ok {
				// Значения нет: MissingParameter уже сообщён резолвером.
				continue
			}
			ch := &domain.Channel{
				ID:       domain.ChannelID(fmt.Sprintf("%s_%s", slot.Name, node.ID)),
				Name:     slot.Name,
				Shape:    slot.Shape,
				Kind:     domain.ChannelExternal,
				Resource: v.Literal,
				Key:      v.Key,
			}
			result.Channels = append(result.Channels, ch)
			bound.Inputs[slot.Name] = ch.ID
			continue
		}

		var ch *domain.Channel
		var err error
		if hasPrimary && slot.Name == primary.Name {
			ch, err = b.resolvePrimary(slot, scope)
		} else {
			ch, err = b.resolveByName(slot, scope)
		}
		if err != nil {
			errs = append(errs, NewSlotError(tpl.Name, node.Instance, slot.Name, err.Error(), unwrapSentinel(err)))
			continue
		}

		if ch.Shape != slot.Shape {
			errs = append(errs, NewSlotError(tpl.Name, node.Instance, slot.Name,
				fmt.Sprintf("channel %s carries %s, slot expects %s", ch.ID, ch.Shape, slot.Shape),
				ErrChannelArityMismatch))
			continue
		}
		bound.Inputs[slot.Name] = ch.ID
	}

	for _, slot := range tpl.Outputs {
		ch := &domain.Channel{
			ID:           OutputChannelID(slot.Name, node.Lane, node.ID),
			Name:         slot.Name,
			Shape:        slot.Shape,
			Kind:         domain.ChannelProduced,
			Producer:     node.ID,
			ProducerSlot: slot.Name,
			Lane:         node.Lane,
		}
		result.Channels = append(result.Channels, ch)
		bound.Outputs[slot.Name] = ch.ID
	}

	return result, errors.Join(errs...)
}

// OutputChannelID возвращает ID выходного канала: {slot}_{lane}_{pid}.
func OutputChannelID(slot string, lane int, pid domain.NodeID) domain.ChannelID {
	return domain.ChannelID(fmt.Sprintf("%s_%d_%s", slot, lane, pid))
}

// checkResource проверяет путь из конфигурации.
func (b *Binder) checkResource(v domain.Value) error {
	exists, err := b.checker.Exists(v.Literal)
	if err != nil || !exists {
		return &ResourceError{Key: v.Key, Path: v.Literal}
	}
	return nil
}

// resolvePrimary находит канал для основного входа.
func (b *Binder) resolvePrimary(slot domain.Slot, scope Scope) (*domain.Channel, error) {
	if scope.Head != "" {
		ch, ok := b.channels.Channel(scope.Head)
		if !ok {
			return nil, fmt.Errorf("%w: lane head %s does not exist", ErrUnresolvedChannel, scope.Head)
		}
		return ch, nil
	}

	// Начало pipeline: источник с тем же именем, иначе единственный источник
	ch, err := b.resolveByName(slot, scope)
	if !errors.Is(err, ErrUnresolvedChannel) {
		return ch, err
	}

	var sources []*domain.Channel
	for _, id := range scope.Visible {
		if c, ok := b.channels.Channel(id); ok && c.Kind == domain.ChannelSource {
			sources = append(sources, c)
		}
	}
	if len(sources) == 1 {
		return sources[0], nil
	}
	return nil, err
}

// resolveByName ищет единственный видимый канал с именем слота.
func (b *Binder) resolveByName(slot domain.Slot, scope Scope) (*domain.Channel, error) {
	var candidates []*domain.Channel
	for _, id := range scope.Visible {
		ch, ok := b.channels.Channel(id)
		if ok && ch.Name == slot.Name {
			candidates = append(candidates, ch)
		}
	}

	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("%w: no channel named %q is visible", ErrUnresolvedChannel, slot.Name)
	case 1:
		return candidates[0], nil
	default:
		ids := make([]string, 0, len(candidates))
		for _, c := range candidates {
			ids = append(ids, string(c.ID))
		}
		return nil, fmt.Errorf("%w: channels %s all match %q",
			ErrAmbiguousChannelBinding, strings.Join(ids, ", "), slot.Name)
	}
}

// unwrapSentinel возвращает sentinel-ошибку движка внутри err.
func unwrapSentinel(err error) error {
	for _, s := range []error{ErrAmbiguousChannelBinding, ErrUnresolvedChannel, ErrChannelArityMismatch} {
		if errors.Is(err, s) {
			return s
		}
	}
	return err
}
