package platform

import (
	"sort"
	"strings"
)

// Modality — вид содержимого в сообщении.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityAudio Modality = "audio"
	ModalityVideo Modality = "video"
	ModalityFile  Modality = "file"
)

// ParseModality разбирает строку из правила маршрутизации.
//
// Регистр не важен. Возвращает false для неизвестных значений.
func ParseModality(s string) (Modality, bool) {
	switch m := Modality(strings.ToLower(strings.TrimSpace(s))); m {
	case ModalityText, ModalityImage, ModalityAudio, ModalityVideo, ModalityFile:
		return m, true
	default:
		return "", false
	}
}

// ModalitySet — множество модальностей сообщения.
type ModalitySet map[Modality]struct{}

// NewModalitySet создаёт множество из перечня.
func NewModalitySet(ms ...Modality) ModalitySet {
	set := make(ModalitySet, len(ms))
	for _, m := range ms {
		set[m] = struct{}{}
	}
	return set
}

// Has проверяет принадлежность.
func (s ModalitySet) Has(m Modality) bool {
	_, ok := s[m]
	return ok
}

// List возвращает отсортированный список (для логов).
func (s ModalitySet) List() []string {
	out := make([]string, 0, len(s))
	for m := range s {
		out = append(out, string(m))
	}
	sort.Strings(out)
	return out
}

// ModalitiesOf вычисляет модальности по сегментам сообщения.
//
// Упоминания и ответы модальности не добавляют. Пустой текст тоже.
func ModalitiesOf(components []Component) ModalitySet {
	set := make(ModalitySet)
	for _, c := range components {
		switch c.Type {
		case ComponentPlain:
			if strings.TrimSpace(c.Text) != "" {
				set[ModalityText] = struct{}{}
			}
		case ComponentImage:
			set[ModalityImage] = struct{}{}
		case ComponentRecord:
			set[ModalityAudio] = struct{}{}
		case ComponentVideo:
			set[ModalityVideo] = struct{}{}
		case ComponentFile:
			set[ModalityFile] = struct{}{}
		}
	}
	return set
}
