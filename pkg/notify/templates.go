package notify

import (
	"bytes"
	"fmt"
	"text/template"
)

// Templates renders notification subjects and bodies. The registry is built
// at construction and handed to the dispatcher, not shared module state.
type Templates struct {
	subjects map[string]*template.Template
	bodies   map[string]*template.Template
}

var templateSources = map[string][2]string{
	TemplatePaymentConfirmed: {
		"Payment confirmed for order {{.orderId}}",
		"Your payment of {{.totalPrice}} for order {{.orderId}} has been confirmed. Your items will ship soon.",
	},
	TemplateSellerNewSale: {
		"New sale on order {{.orderId}}",
		"Order {{.orderId}} containing your items has been paid. Please prepare the shipment.",
	},
	TemplateOrderShipped: {
		"Order {{.orderId}} has shipped",
		"Your order {{.orderId}} was handed to {{.carrier}} with tracking number {{.trackingNumber}}.",
	},
	TemplateOrderDelivered: {
		"Order {{.orderId}} delivered",
		"Order {{.orderId}} has been marked delivered. Thank you for selling with us.",
	},
	TemplateOrderCancelled: {
		"Order {{.orderId}} cancelled",
		"Order {{.orderId}} has been cancelled.",
	},
	TemplateDisputeOpened: {
		"Dispute opened on order {{.orderId}}",
		"A dispute ({{.reason}}) has been opened on order {{.orderId}}. Our team will review it shortly.",
	},
	TemplateDisputeUpdated: {
		"Dispute on order {{.orderId}} is now {{.status}}",
		"The dispute on order {{.orderId}} has moved to status {{.status}}.{{if .resolution}} Resolution: {{.resolution}}{{end}}",
	},
}

func NewTemplates() (*Templates, error) {
	t := &Templates{
		subjects: make(map[string]*template.Template, len(templateSources)),
		bodies:   make(map[string]*template.Template, len(templateSources)),
	}
	for name, src := range templateSources {
		subject, err := template.New(name + ".subject").Parse(src[0])
		if err != nil {
			return nil, fmt.Errorf("parse subject template %s: %w", name, err)
		}
		body, err := template.New(name + ".body").Parse(src[1])
		if err != nil {
			return nil, fmt.Errorf("parse body template %s: %w", name, err)
		}
		t.subjects[name] = subject
		t.bodies[name] = body
	}
	return t, nil
}

// Render produces the subject and body for a named template.
func (t *Templates) Render(name string, data map[string]string) (string, string, error) {
	subject, ok := t.subjects[name]
	if !ok {
		return "", "", fmt.Errorf("unknown notification template %q", name)
	}

	var sb, bb bytes.Buffer
	if err := subject.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("render subject %s: %w", name, err)
	}
	if err := t.bodies[name].Execute(&bb, data); err != nil {
		return "", "", fmt.Errorf("render body %s: %w", name, err)
	}
	return sb.String(), bb.String(), nil
}
