// Package domain define contratos e tipos de domínio do gate de admissão:
// chave do cliente, registro de consumo por janela, decisão e estatísticas.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura.
package domain
