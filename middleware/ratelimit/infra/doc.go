// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - Store: records de janela fixa por chave, em shards (xxhash)
//   - TokenBucket: policy alternativa usando golang.org/x/time/rate
//   - ChanPool: semáforo simples para limite de concorrência
//   - MemoryStatsStore, RedisStatsStore, PrometheusStats: estatísticas de decisão
//   - AsyncStats: fila que isola o gate do I/O das estatísticas
package infra
