// Package ratelimit fornece o gate de admissão (net/http) que fica na frente
// do dispatcher da API de notas, mais um limite opcional de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: policy de janela fixa, política de falha, sweeper, acquire/timeout
//   - infra: store em shards, token bucket, semáforo, estatísticas
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + tradução para status/headers
//
// Fluxo no gate:
//
//  1. Extrai a chave do cliente (header/XFF/RemoteAddr, "unknown" como fallback)
//  2. Chama Service.Decide(key, now)
//  3. Se bloqueado, responde 429 em JSON com Retry-After e não chama o próximo handler
//  4. Se permitido, chama o próximo handler com a requisição original
//
// Falhas internas da policy nunca viram erro para o cliente: por padrão o gate
// libera (fail-open); Options.FailClosed inverte.
package ratelimit
