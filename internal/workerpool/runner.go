package workerpool

import "github.com/skapxd/image-optimization-service/internal/transformer"

// TransformRunner adapts the image processor into the pool's task shape.
func TransformRunner(p *transformer.Processor) Runner {
	return func(t Task) ([]byte, error) {
		switch t.Kind {
		case KindBlurPlaceholder:
			return p.BlurPlaceholder(t.Bytes, t.Blur)
		default:
			return p.Optimize(t.Bytes, t.Options)
		}
	}
}
