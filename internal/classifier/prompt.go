package classifier

import (
	"fmt"
	"strings"
)

// BuildPrompt renders the analysis prompt for text. The text is expected to
// be truncated already.
func BuildPrompt(p Profile, text string) string {
	var b strings.Builder

	b.WriteString("Você é um analista financeiro experiente")
	if p.Market != "" {
		b.WriteString(" especializado no mercado " + p.Market)
	}
	b.WriteString(".\n\n")

	b.WriteString("CONTEXTO:\n")
	b.WriteString("Você receberá um EXTRATO BANCÁRIO em CSV (vírgula ou ponto e vírgula), texto livre ou texto extraído de PDF.\n\n")

	b.WriteString("OBJETIVO:\n")
	b.WriteString("Identifique as colunas de descrição e valor e separe apenas os GASTOS DE ASSINATURAS RECORRENTES.\n")
	b.WriteString("Valores negativos (ex: -29.90) devem ser convertidos para positivos.\n\n")

	b.WriteString("IDENTIFICAR (exemplos):\n")
	for _, s := range p.Include {
		b.WriteString("  - " + s + "\n")
	}
	if len(p.Ignore) > 0 {
		b.WriteString("\nIGNORAR:\n")
		for _, s := range p.Ignore {
			b.WriteString("  - " + s + "\n")
		}
	}
	if len(p.Categories) > 0 {
		b.WriteString("\nCATEGORIAS PREFERIDAS: " + strings.Join(p.Categories, ", ") + "\n")
	}

	b.WriteString("\nREGRAS DE SAÍDA:\n")
	b.WriteString("1. \"name\" deve ser o nome limpo do serviço (ex: \"Netflix\" e não \"DEB EM CONTA NETFLIX\").\n")
	b.WriteString("2. \"frequency\" é \"monthly\" ou \"yearly\".\n")
	b.WriteString("3. \"confidence\" é um número entre 0 e 1.\n")
	b.WriteString("4. \"recommendation\" é uma dica curta de economia para o item, quando fizer sentido.\n")
	fmt.Fprintf(&b, "5. \"insights\" traz no máximo %d dicas gerais, escritas em %s.\n", p.MaxInsights, p.Language)
	b.WriteString("6. Se o texto estiver vazio ou sem sentido, retorne 0 itens e um insight pedindo um arquivo válido.\n")
	b.WriteString("Retorne APENAS JSON válido, sem Markdown.\n\n")

	b.WriteString("TEXTO PARA ANÁLISE:\n")
	b.WriteString("===================\n")
	b.WriteString(text)
	b.WriteString("\n===================\n")

	return b.String()
}
